package contract

// RecordID: 语料记录标识（语料 JSON 顶层键，与历史结果 CSV 第一列对应）。
type RecordID string

// Record: 语料中的单条记录。
// Text 由 title 与 description 以 " - " 连接而成；不做其他清洗。
type Record struct {
	ID   RecordID
	Text string
}

// EntityPair: 一个命名实体（类型 + 表面名称），如 ("Person", "Ada Lovelace")。
type EntityPair struct {
	Type string
	Name string
}

// EntityRow: 扁平化后的 CSV 行（id,type,name）。
type EntityRow struct {
	ID RecordID
	EntityPair
}

// Index: 历史抽取结果索引（RecordID → 有序实体列表）。
// 约束：仅包含至少一条允许类型实体的键；缺失键与 nil 均视为“无已知实体”。
type Index map[RecordID][]EntityPair

// Has 报告 id 是否有已知实体。
func (ix Index) Has(id RecordID) bool { return len(ix[id]) > 0 }

// Entities 返回 id 的实体列表（可能为 nil）。
func (ix Index) Entities(id RecordID) []EntityPair { return ix[id] }

// Add 追加一条实体，保持文件内顺序。
func (ix Index) Add(id RecordID, p EntityPair) { ix[id] = append(ix[id], p) }

// Result: 单条记录的抽取结果。Err 非空时 Entities 无意义。
// 抽取阶段按记录折叠为 []Result，再单独进行汇报与写出。
type Result struct {
	ID       RecordID
	Entities []EntityPair
	Err      error
}

// OK 报告该记录是否成功。
func (r Result) OK() bool { return r.Err == nil }

// Rows 将成功结果展开为 CSV 行；失败记录被跳过。
func Rows(results []Result) []EntityRow {
	var out []EntityRow
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		for _, p := range r.Entities {
			out = append(out, EntityRow{ID: r.ID, EntityPair: p})
		}
	}
	return out
}
