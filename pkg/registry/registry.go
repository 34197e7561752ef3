package registry

import (
	"bytes"
	"encoding/json"

	"calaisner/pkg/contract"
	delim "calaisner/plugins/assembler/delimited"
	dcal "calaisner/plugins/decoder/calaisjson"
	calais "calaisner/plugins/extractor/calais"
	flaky "calaisner/plugins/extractor/flaky"
	mock "calaisner/plugins/extractor/mock"
	cjson "calaisner/plugins/loader/corpusjson"
	pcsv "calaisner/plugins/loader/priorcsv"
	wfs "calaisner/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewCorpusLoader 工厂签名：接收原样 JSON Options。
type NewCorpusLoader func(raw json.RawMessage) (contract.CorpusLoader, error)

// NewIndexLoader 工厂签名：接收原样 JSON Options。
type NewIndexLoader func(raw json.RawMessage) (contract.IndexLoader, error)

// NewExtractor 工厂签名：接收原样 JSON Options。
type NewExtractor func(raw json.RawMessage) (contract.Extractor, error)

// NewDecoder 工厂签名：接收原样 JSON Options。
type NewDecoder func(raw json.RawMessage) (contract.Decoder, error)

// NewAssembler 工厂签名：接收原样 JSON Options。
type NewAssembler func(raw json.RawMessage) (contract.Assembler, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Corpus 工厂注册表（显式、零反射）。
var Corpus = map[string]NewCorpusLoader{
	// json: 顶层对象 {id: {title, description}}
	"json": func(raw json.RawMessage) (contract.CorpusLoader, error) {
		var opts cjson.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return cjson.New(&opts), nil
	},
}

// Index 工厂注册表。
var Index = map[string]NewIndexLoader{
	// csv: id,type,name 行
	"csv": func(raw json.RawMessage) (contract.IndexLoader, error) {
		var opts pcsv.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return pcsv.New(&opts), nil
	},
}

// Extractor 工厂注册表。
// 构造函数自行解析原样 JSON；此处先做严格校验。
var Extractor = map[string]NewExtractor{
	"calais": func(raw json.RawMessage) (contract.Extractor, error) {
		if err := strictUnmarshal(raw, &calais.Options{}); err != nil {
			return nil, err
		}
		return calais.New(raw)
	},
	// mock: 离线构造 Calais 形状的响应
	"mock": func(raw json.RawMessage) (contract.Extractor, error) {
		if err := strictUnmarshal(raw, &mock.Options{}); err != nil {
			return nil, err
		}
		return mock.New(raw)
	},
	// flaky: 周期性返回 500，用于验证单条失败不中断
	"flaky": func(raw json.RawMessage) (contract.Extractor, error) {
		if err := strictUnmarshal(raw, &flaky.Options{}); err != nil {
			return nil, err
		}
		return flaky.New(raw)
	},
}

// Decoder 工厂注册表。
var Decoder = map[string]NewDecoder{
	"calais": func(raw json.RawMessage) (contract.Decoder, error) {
		if err := strictUnmarshal(raw, &dcal.Options{}); err != nil {
			return nil, err
		}
		return dcal.New(raw)
	},
}

// Assembler 工厂注册表。
var Assembler = map[string]NewAssembler{
	// delimited: TSV 文本与 CSV 实体
	"delimited": func(raw json.RawMessage) (contract.Assembler, error) {
		if err := strictUnmarshal(raw, &delim.Options{}); err != nil {
			return nil, err
		}
		return delim.New(raw)
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}
