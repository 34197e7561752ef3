package delimited

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"calaisner/pkg/contract"
)

// Options: 预留占位，分隔符固定（TSV '\t'，CSV ','）。
type Options struct{}

type Assembler struct{}

// New 从原样 JSON Options 创建装配器（当前忽略选项）。
func New(raw json.RawMessage) (*Assembler, error) {
	_ = raw
	return &Assembler{}, nil
}

var _ contract.Assembler = (*Assembler)(nil)

// Texts: 每条记录渲染为 "id\ttext\n"，两列均去除制表符与换行。
func (a *Assembler) Texts(ctx context.Context, recs []contract.Record) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rs := make([]io.Reader, 0, len(recs))
	for _, r := range recs {
		rs = append(rs, strings.NewReader(contract.TSVField(string(r.ID))+"\t"+contract.TSVField(r.Text)+"\n"))
	}
	return io.MultiReader(rs...), nil
}

// Entities: 每条实体渲染为 "id,type,name\n"，各列去除换行；不加引号。
func (a *Assembler) Entities(ctx context.Context, rows []contract.EntityRow) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rs := make([]io.Reader, 0, len(rows))
	for _, r := range rows {
		var b strings.Builder
		b.WriteString(contract.CSVField(string(r.ID)))
		b.WriteByte(',')
		b.WriteString(contract.CSVField(r.Type))
		b.WriteByte(',')
		b.WriteString(contract.CSVField(r.Name))
		b.WriteByte('\n')
		rs = append(rs, strings.NewReader(b.String()))
	}
	return io.MultiReader(rs...), nil
}
