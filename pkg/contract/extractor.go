package contract

import (
	"context"
	"time"
)

// Raw: 抽取服务返回的原始响应体。
// 约束：原样返回，不做清洗/截断/归一化。
type Raw struct {
	Text string
}

// Extractor: 对单条文本发起一次实体抽取，返回原始响应。
// 同步调用；限流重试在实现内部完成；应尊重 ctx 取消/超时并及时释放资源。
type Extractor interface {
	Extract(ctx context.Context, text string) (Raw, error)
}

// Decoder: 将原始响应解析为实体列表（按文档顺序）。
type Decoder interface {
	Decode(ctx context.Context, raw Raw) ([]EntityPair, error)
}

// Attempt: 单次 HTTP 尝试的诊断快照（运维通道，仅供日志）。
type Attempt struct {
	N      int           // 第几次尝试（从 1 开始）
	Status int           // HTTP 状态码；传输失败时为 0
	Body   string        // 失败时的响应体片段
	Retry  bool          // 是否会再试一次
	Wait   time.Duration // 下一次尝试前的等待（Retry 为 true 时有效，可为 0）
	Err    error
}

// AttemptObserver 接收每次尝试的结果。
type AttemptObserver func(Attempt)

type observerKey struct{}

// WithObserver 将观察者挂到 ctx 上，供 Extractor 实现回调。
func WithObserver(ctx context.Context, fn AttemptObserver) context.Context {
	if fn == nil {
		return ctx
	}
	return context.WithValue(ctx, observerKey{}, fn)
}

// ObserverFrom 取出 ctx 上的观察者；不存在时返回 no-op。
func ObserverFrom(ctx context.Context) AttemptObserver {
	if fn, ok := ctx.Value(observerKey{}).(AttemptObserver); ok && fn != nil {
		return fn
	}
	return func(Attempt) {}
}
