// Package retry 提供可注入的重试/退避策略对象。
package retry

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Stop: NextBackOff 返回该值表示不再重试。
const Stop = backoff.Stop

// Policy: 重试策略。
// MaxAttempts<=0 表示不限次数（持续重试直到成功或 ctx 取消）。
// 第 n 次重试前的等待为 Delay*Multiplier^(n-1)，并以 MaxDelay 封顶（MaxDelay<=0 不封顶）。
// Delay 为 0 时立即重试。
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	// Sleep: 可替换的可取消等待（测试注入）；为空使用 SleepCtx。
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default: 固定 500ms、不限次数。
func Default() Policy {
	return Policy{Delay: 500 * time.Millisecond, Multiplier: 1}
}

// exponential 构造无抖动、无总时长上限的指数序列。
func (p Policy) exponential() *backoff.ExponentialBackOff {
	maxDelay := time.Duration(math.MaxInt64)
	if p.MaxDelay > 0 {
		maxDelay = p.MaxDelay
	}
	initial := max(p.Delay, 0)
	eb := &backoff.ExponentialBackOff{
		InitialInterval:     min(initial, maxDelay),
		RandomizationFactor: 0,
		Multiplier:          max(p.Multiplier, 1),
		MaxInterval:         maxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	eb.Reset()
	return eb
}

// BackOff 返回单次调用内使用的退避序列（每次调用新建）。
// 总尝试次数达到 MaxAttempts 后 NextBackOff 返回 Stop。
func (p Policy) BackOff() backoff.BackOff {
	switch {
	case p.MaxAttempts <= 0:
		return p.exponential()
	case p.MaxAttempts == 1:
		return &backoff.StopBackOff{}
	default:
		return backoff.WithMaxRetries(p.exponential(), uint64(p.MaxAttempts-1))
	}
}

// Backoff 返回第 n 次重试（n>=1）前的等待时长，不考虑次数上限。
func (p Policy) Backoff(n int) time.Duration {
	eb := p.exponential()
	d := eb.NextBackOff()
	for i := 1; i < n; i++ {
		d = eb.NextBackOff()
	}
	return d
}

// Pause 以注入的 Sleep（默认 SleepCtx）等待 d。
func (p Policy) Pause(ctx context.Context, d time.Duration) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepCtx
	}
	return sleep(ctx, d)
}

// SleepCtx: 可取消的 sleep。
func SleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
