package contract

import (
	"fmt"
	"net/http"
	"strings"
)

// UpstreamError 用于承载 HTTP 上游错误的最小诊断信息。
// 实现方应提供状态码与简短消息，便于 pipeline 记录结构化日志字段。
type UpstreamError interface {
	error
	UpstreamStatus() int
	UpstreamMessage() string
}

// maxUpstreamMsg: 日志中携带的响应体片段上限（字节）。
const maxUpstreamMsg = 512

// ServiceError: 抽取服务返回的非成功状态（429 除外）。
// 501 匹配 ErrUnexpectedStatus，其余状态匹配 ErrService。
type ServiceError struct {
	Status int
	Body   string
}

func (e *ServiceError) Error() string {
	if e.Status == http.StatusNotImplemented {
		return fmt.Sprintf("calais upstream %d: unexpected status", e.Status)
	}
	return fmt.Sprintf("calais upstream %d: %s", e.Status, e.UpstreamMessage())
}

// Is 使 errors.Is 可按状态归类。
func (e *ServiceError) Is(target error) bool {
	if e.Status == http.StatusNotImplemented {
		return target == ErrUnexpectedStatus
	}
	return target == ErrService
}

func (e *ServiceError) UpstreamStatus() int { return e.Status }

func (e *ServiceError) UpstreamMessage() string {
	msg := strings.TrimSpace(e.Body)
	if len(msg) > maxUpstreamMsg {
		msg = msg[:maxUpstreamMsg]
	}
	return msg
}

var _ UpstreamError = (*ServiceError)(nil)
