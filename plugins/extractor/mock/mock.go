package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/sjson"

	"calaisner/pkg/contract"
)

// Entity: 固定返回的实体（Calais 风格）。
type Entity struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// Options: 离线联调配置（可选）。
type Options struct {
	// Entities: 每次调用固定返回的实体；为空时以文本中 " - " 之前的标题作为一个 Organization。
	Entities []Entity `json:"entities"`
	// Language: 写入 doc.meta.language 的占位值，默认 "English"。
	Language string `json:"language"`
}

// Client: 不访问网络，按 Calais 响应形状构造 JSON。
// 响应中总包含一个不带 _type 的 doc 条目，便于解码器验证过滤逻辑。
type Client struct {
	ents []Entity
	lang string
}

func New(raw json.RawMessage) (*Client, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("mock options: %w", err)
		}
	}
	if o.Language == "" {
		o.Language = "English"
	}
	return &Client{ents: o.Entities, lang: o.Language}, nil
}

var _ contract.Extractor = (*Client)(nil)

func (c *Client) Extract(ctx context.Context, text string) (contract.Raw, error) {
	if err := ctx.Err(); err != nil {
		return contract.Raw{}, err
	}
	if text == "" {
		return contract.Raw{}, fmt.Errorf("mock: %w: empty text", contract.ErrInvalidArgument)
	}
	ents := c.ents
	if len(ents) == 0 {
		title, _, _ := strings.Cut(text, " - ")
		ents = []Entity{{Type: "Organization", Name: strings.TrimSpace(title)}}
	}
	body := `{}`
	var err error
	body, err = sjson.Set(body, "doc.meta.language", c.lang)
	if err != nil {
		return contract.Raw{}, err
	}
	for i, e := range ents {
		key := fmt.Sprintf("mock-entity-%d", i)
		if body, err = sjson.Set(body, key+"._type", e.Type); err != nil {
			return contract.Raw{}, err
		}
		if body, err = sjson.Set(body, key+".name", e.Name); err != nil {
			return contract.Raw{}, err
		}
	}
	return contract.Raw{Text: body}, nil
}
