package calais

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"calaisner/pkg/contract"
	"calaisner/pkg/retry"
)

// DefaultEndpoint: PermID/Calais 实体抽取接口。
const DefaultEndpoint = "https://api.thomsonreuters.com/permid/calais"

const maxRetryBody = 512

// Options: 最小必需配置。
type Options struct {
	Endpoint       string `json:"endpoint"`         // 为空使用 DefaultEndpoint
	AccessTokenEnv string `json:"access_token_env"` // 优先级低于 access_token
	AccessToken    string `json:"access_token"`     // 明文传入（CLI 位置参数经装配注入此处）
	TimeoutSeconds int    `json:"timeout_seconds"`  // client 级超时（秒）
	OutputFormat   string `json:"output_format"`    // outputformat 请求头
	UserAgent      string `json:"user_agent"`
	// ExtraHeaders: 追加/覆盖请求头（例如网关要求的附加头）。
	ExtraHeaders map[string]string `json:"extra_headers"`
	Retry        RetryOptions      `json:"retry"`
}

// RetryOptions: 429 限流重试策略。max_attempts<=0 表示不限次数。
// delay_ms / max_delay_ms 缺省时分别为 500ms 与不封顶；显式 0 表示立即重试 / 不封顶。
type RetryOptions struct {
	MaxAttempts int     `json:"max_attempts"`
	DelayMS     *int    `json:"delay_ms"`
	Multiplier  float64 `json:"multiplier"`
	MaxDelayMS  *int    `json:"max_delay_ms"`
}

func (o *Options) defaults() {
	if o.Endpoint == "" {
		o.Endpoint = DefaultEndpoint
	}
	if o.AccessTokenEnv == "" {
		o.AccessTokenEnv = "CALAIS_ACCESS_TOKEN"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
	if o.OutputFormat == "" {
		o.OutputFormat = "application/json"
	}
	if o.UserAgent == "" {
		o.UserAgent = "Calais Rest Client"
	}
}

// Policy 将选项转换为重试策略。
func (r RetryOptions) Policy() retry.Policy {
	p := retry.Default()
	p.MaxAttempts = r.MaxAttempts
	if r.DelayMS != nil && *r.DelayMS >= 0 {
		p.Delay = time.Duration(*r.DelayMS) * time.Millisecond
	}
	if r.Multiplier > 0 {
		p.Multiplier = r.Multiplier
	}
	if r.MaxDelayMS != nil && *r.MaxDelayMS >= 0 {
		p.MaxDelay = time.Duration(*r.MaxDelayMS) * time.Millisecond
	}
	return p
}

type Client struct {
	url    string
	token  string
	format string
	ua     string
	extraH map[string]string
	policy retry.Policy
	do     func(*http.Request) (*http.Response, error)
}

// New 从原样 JSON 选项构造客户端。
// 未配置令牌时仍发送空的 X-AG-Access-Token（匿名额度）。
func New(raw json.RawMessage) (*Client, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("calais options: %w", err)
		}
	}
	opts.defaults()
	if !(strings.HasPrefix(opts.Endpoint, "http://") || strings.HasPrefix(opts.Endpoint, "https://")) {
		return nil, fmt.Errorf("calais: %w: endpoint must be http(s): %q", contract.ErrInvalidArgument, opts.Endpoint)
	}
	token := opts.AccessToken
	if token == "" && opts.AccessTokenEnv != "" {
		token = os.Getenv(opts.AccessTokenEnv)
	}
	hc := &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second}
	return &Client{
		url:    opts.Endpoint,
		token:  token,
		format: opts.OutputFormat,
		ua:     opts.UserAgent,
		extraH: opts.ExtraHeaders,
		policy: opts.Retry.Policy(),
		do:     hc.Do,
	}, nil
}

// WithPolicy 替换重试策略（返回同一实例，便于链式装配与测试注入）。
func (c *Client) WithPolicy(p retry.Policy) *Client {
	c.policy = p
	return c
}

var _ contract.Extractor = (*Client)(nil)

// Extract: 提交一条文本；429 按策略等待后重试，其余非 2xx 立即失败。
func (c *Client) Extract(ctx context.Context, text string) (contract.Raw, error) {
	if text == "" {
		return contract.Raw{}, fmt.Errorf("calais: %w: empty text", contract.ErrInvalidArgument)
	}
	observe := contract.ObserverFrom(ctx)
	bo := c.policy.BackOff()
	for attempt := 1; ; attempt++ {
		status, body, err := c.post(ctx, text)
		if err != nil {
			observe(contract.Attempt{N: attempt, Err: err})
			return contract.Raw{}, err
		}
		switch {
		case status/100 == 2:
			observe(contract.Attempt{N: attempt, Status: status})
			return contract.Raw{Text: body}, nil
		case status == http.StatusTooManyRequests:
			wait := bo.NextBackOff()
			if wait == retry.Stop {
				err := fmt.Errorf("calais: %w after %d attempts", contract.ErrRateLimited, attempt)
				observe(contract.Attempt{N: attempt, Status: status, Body: body, Err: err})
				return contract.Raw{}, err
			}
			observe(contract.Attempt{N: attempt, Status: status, Body: body, Retry: true, Wait: wait})
			if err := c.policy.Pause(ctx, wait); err != nil {
				return contract.Raw{}, err
			}
		default:
			se := &contract.ServiceError{Status: status, Body: body}
			observe(contract.Attempt{N: attempt, Status: status, Body: se.UpstreamMessage(), Err: se})
			return contract.Raw{}, se
		}
	}
}

// post 发出一次请求并总是排空、关闭响应体。
// 429 仅保留前 maxRetryBody 字节供日志；501 不保留响应体。
func (c *Client) post(ctx context.Context, text string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(text))
	if err != nil {
		return 0, "", fmt.Errorf("new request: %v: %w", err, contract.ErrInvalidArgument)
	}
	req.Header.Set("X-AG-Access-Token", c.token)
	req.Header.Set("Content-Type", "text/raw")
	req.Header.Set("outputformat", c.format)
	req.Header.Set("User-Agent", c.ua)
	for k, v := range c.extraH {
		if k == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := c.do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if cerr := ctx.Err(); cerr != nil {
				return 0, "", cerr
			}
		}
		return 0, "", fmt.Errorf("calais post: %w: %w", contract.ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxRetryBody))
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, strings.TrimSpace(string(b)), nil
	case http.StatusNotImplemented:
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, "", nil
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return 0, "", cerr
		}
		return 0, "", fmt.Errorf("calais read body: %w: %w", contract.ErrNetwork, err)
	}
	return resp.StatusCode, string(b), nil
}
