package contract

import "context"

// CorpusLoader: 读取语料文件，按文件内顺序返回记录。
// only 非 nil 时仅保留在 only 中有已知实体的记录。
// 文件缺失/非法 JSON/字段缺失一律返回匹配 ErrLoad 的错误。
type CorpusLoader interface {
	Load(ctx context.Context, path string, only Index) ([]Record, error)
}

// IndexLoader: 读取历史抽取结果 CSV 并构建 Index。
type IndexLoader interface {
	Load(ctx context.Context, path string) (Index, error)
}
