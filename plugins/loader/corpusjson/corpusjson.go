package corpusjson

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/gjson"

	"calaisner/pkg/contract"
)

// Options: 语料字段映射（默认 title / description，以 " - " 连接）。
type Options struct {
	TitleField       string `json:"title_field"`
	DescriptionField string `json:"description_field"`
	Separator        string `json:"separator"`
}

type Loader struct {
	title string
	desc  string
	sep   string
}

// New 创建语料加载器。
func New(opts *Options) *Loader {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.TitleField == "" {
		o.TitleField = "title"
	}
	if o.DescriptionField == "" {
		o.DescriptionField = "description"
	}
	if o.Separator == "" {
		o.Separator = " - "
	}
	return &Loader{title: gjson.Escape(o.TitleField), desc: gjson.Escape(o.DescriptionField), sep: o.Separator}
}

var _ contract.CorpusLoader = (*Loader)(nil)

// Load 读取形如 {"<id>": {"title": ..., "description": ...}, ...} 的语料。
// 返回顺序与文件中键的顺序一致；重复键保留首次出现的位置、采用最后一次的值。
func (l *Loader) Load(ctx context.Context, path string, only contract.Index) ([]contract.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("corpus %s: %w: %w", path, contract.ErrLoad, err)
	}
	if !gjson.ValidBytes(b) {
		return nil, fmt.Errorf("corpus %s: %w: invalid json", path, contract.ErrLoad)
	}
	doc := gjson.ParseBytes(b)
	if !doc.IsObject() {
		return nil, fmt.Errorf("corpus %s: %w: top level is not an object", path, contract.ErrLoad)
	}

	var (
		recs []contract.Record
		pos  = map[contract.RecordID]int{}
		ferr error
	)
	doc.ForEach(func(k, v gjson.Result) bool {
		id := contract.RecordID(k.String())
		if only != nil && !only.Has(id) {
			return true
		}
		text, err := l.text(v)
		if err != nil {
			ferr = fmt.Errorf("corpus %s: record %q: %w: %v", path, id, contract.ErrLoad, err)
			return false
		}
		if i, dup := pos[id]; dup {
			recs[i].Text = text
			return true
		}
		pos[id] = len(recs)
		recs = append(recs, contract.Record{ID: id, Text: text})
		return true
	})
	if ferr != nil {
		return nil, ferr
	}
	return recs, nil
}

func (l *Loader) text(v gjson.Result) (string, error) {
	if !v.IsObject() {
		return "", errors.New("value is not an object")
	}
	t := v.Get(l.title)
	if !scalar(t) {
		return "", fmt.Errorf("missing or non-scalar %s", l.title)
	}
	d := v.Get(l.desc)
	if !scalar(d) {
		return "", fmt.Errorf("missing or non-scalar %s", l.desc)
	}
	return t.String() + l.sep + d.String(), nil
}

func scalar(r gjson.Result) bool {
	switch r.Type {
	case gjson.String, gjson.Number, gjson.True, gjson.False:
		return true
	default:
		return false
	}
}
