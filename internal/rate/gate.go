package rate

import (
	"context"
	"time"

	xrate "golang.org/x/time/rate"
)

// Gate: 请求节流闸门（并发安全）。
type Gate interface {
	// Wait: 阻塞直到可发起下一次请求或 ctx 取消。
	Wait(ctx context.Context) error
}

// Pacer: 以固定最小间隔放行请求（突发=1）。
// 首次请求立即放行；此后相邻两次放行的间隔不小于 interval。
type Pacer struct {
	interval time.Duration
	lim      *xrate.Limiter
}

// NewPacer: interval<=0 表示不限流。
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{lim: xrate.NewLimiter(xrate.Inf, 1)}
	}
	return &Pacer{interval: interval, lim: xrate.NewLimiter(xrate.Every(interval), 1)}
}

// Interval 返回配置的最小间隔（0 表示不限流）。
func (p *Pacer) Interval() time.Duration {
	if p == nil {
		return 0
	}
	return p.interval
}

// Wait 实现 Gate。nil Pacer 仅检查取消。
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.lim == nil {
		return ctx.Err()
	}
	return p.lim.Wait(ctx)
}

var _ Gate = (*Pacer)(nil)
