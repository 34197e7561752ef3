package calaisjson

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"calaisner/pkg/contract"
)

// Options: 可选字段名映射；默认 _type / name。
type Options struct {
	TypeField string `json:"type_field"`
	NameField string `json:"name_field"`
}

type Decoder struct {
	typeField string
	nameField string
}

// New 从原样 JSON Options 创建解码器。
func New(raw json.RawMessage) (*Decoder, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("calaisjson options: %w", err)
		}
	}
	if opts.TypeField == "" {
		opts.TypeField = "_type"
	}
	if opts.NameField == "" {
		opts.NameField = "name"
	}
	return &Decoder{typeField: gjson.Escape(opts.TypeField), nameField: gjson.Escape(opts.NameField)}, nil
}

var _ contract.Decoder = (*Decoder)(nil)

// Decode 期望 Raw.Text 为 JSON 对象；按文档顺序遍历顶层值，
// 仅当值为对象且同时带有标量 _type 与 name 时产出一条实体，其余条目静默跳过。
func (d *Decoder) Decode(ctx context.Context, raw contract.Raw) ([]contract.EntityPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !gjson.Valid(raw.Text) {
		return nil, fmt.Errorf("calais response: invalid json: %w", contract.ErrDecode)
	}
	doc := gjson.Parse(raw.Text)
	if !doc.IsObject() {
		return nil, fmt.Errorf("calais response: top level is %s, not object: %w", kind(doc), contract.ErrDecode)
	}
	var out []contract.EntityPair
	doc.ForEach(func(_, v gjson.Result) bool {
		if !v.IsObject() {
			return true
		}
		typ, name := v.Get(d.typeField), v.Get(d.nameField)
		if !scalar(typ) || !scalar(name) {
			return true
		}
		out = append(out, contract.EntityPair{Type: typ.String(), Name: name.String()})
		return true
	})
	return out, nil
}

func scalar(r gjson.Result) bool {
	switch r.Type {
	case gjson.String, gjson.Number, gjson.True, gjson.False:
		return true
	default:
		return false
	}
}

func kind(r gjson.Result) string {
	switch {
	case r.IsArray():
		return "array"
	case r.Type == gjson.Null:
		return "null"
	default:
		return r.Type.String()
	}
}
