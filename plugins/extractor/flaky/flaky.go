package flaky

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync/atomic"

	"calaisner/pkg/contract"
	"calaisner/plugins/extractor/mock"
)

// Options 定义可选项。
type Options struct {
	// FailEvery: 每 N 次调用中的第 1 次返回 500；<=0 时仅第一次调用失败。
	FailEvery int `json:"fail_every"`
	// LogPath: 调试用日志文件，记录每次调用结果（可选）。
	LogPath string `json:"log_path,omitempty"`
	// Mock: 成功时转交 mock 抽取器的选项。
	Mock json.RawMessage `json:"mock,omitempty"`
}

// Client 是带状态的抽取器：
// 失败调用返回 500 ServiceError；其余调用按 mock 抽取器构造响应。
// 用于验证单条失败不会中断整轮抽取。
type Client struct {
	every   int32
	logPath string
	inner   *mock.Client
	count   atomic.Int32
}

// New 构造 Client。
func New(raw json.RawMessage) (*Client, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, err
		}
	}
	inner, err := mock.New(o.Mock)
	if err != nil {
		return nil, err
	}
	return &Client{every: int32(o.FailEvery), logPath: o.LogPath, inner: inner}, nil
}

func (c *Client) log(s string) {
	if c.logPath == "" {
		return
	}
	// 追加写入，忽略错误。
	_ = appendFile(c.logPath, s+"\n")
}

// appendFile 以追加方式写入。
func appendFile(path, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}

func (c *Client) fail(n int32) bool {
	if c.every <= 0 {
		return n == 1
	}
	return (n-1)%c.every == 0
}

// Extract 实现 contract.Extractor。
func (c *Client) Extract(ctx context.Context, text string) (contract.Raw, error) {
	n := c.count.Add(1)
	if c.fail(n) {
		c.log("service_error")
		err := &contract.ServiceError{Status: http.StatusInternalServerError, Body: "flaky: injected failure"}
		contract.ObserverFrom(ctx)(contract.Attempt{N: 1, Status: err.Status, Body: err.Body, Err: err})
		return contract.Raw{}, err
	}
	c.log("ok")
	return c.inner.Extract(ctx, text)
}

var _ contract.Extractor = (*Client)(nil)
