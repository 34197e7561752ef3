package contract

import "errors"

// 最小错误分类（用于上层策略判定与退出码映射）。
var (
	// ErrLoad: 语料或历史结果文件缺失/不可读/格式错误。
	ErrLoad = errors.New("load failed")
	// ErrNetwork: 传输层失败（连接、DNS、超时等）。
	ErrNetwork = errors.New("network failure")
	// ErrService: 服务端返回非 200/429/501 的状态。
	ErrService = errors.New("service error")
	// ErrUnexpectedStatus: 服务端返回 501。
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrDecode: 响应体不是合法 JSON 或顶层不是对象。
	ErrDecode = errors.New("decode failed")
	// ErrInvalidArgument: 调用参数不合法（例如抽样数量超出可选数量）。
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrRateLimited: 有界重试策略用尽后仍被限流。
	ErrRateLimited = errors.New("rate limited")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
)
