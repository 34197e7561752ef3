package contract

import (
	"context"
	"io"
)

// Assembler: 将结构化结果渲染为待写出的字节流。
// 约束：
//  1. 分隔符固定（TSV 用 '\t'，CSV 用 ','）；
//  2. 渲染前对字段做分隔符/换行剥离，保证每条记录恰为一行；
//  3. 按输入顺序输出，不排序、不去重。
type Assembler interface {
	// Texts: 每条记录一行 "id\ttext\n"。
	Texts(ctx context.Context, recs []Record) (io.Reader, error)
	// Entities: 每条实体一行 "id,type,name\n"。
	Entities(ctx context.Context, rows []EntityRow) (io.Reader, error)
}
