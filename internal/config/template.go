package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 使用 calais 抽取器，令牌从 CALAIS_ACCESS_TOKEN 读取；
// - 输入输出路径由命令行位置参数提供，Writer 不设根目录；
// - 选项包含所有键，值为安全中性默认。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		Logging:    Logging{Level: "info", File: "logs/calaisner.log"},
		PauseMS:    d.PauseMS,
		Retry:      Retry{MaxAttempts: 0, DelayMS: 500, Multiplier: 1, MaxDelayMS: 0},
		Sample:     Sample{Types: []string{"Organization", "Person"}},
		Components: d.Components,
	}
	cfg.Options.Corpus = json.RawMessage(`{
  "title_field": "title",
  "description_field": "description",
  "separator": " - "
}`)
	cfg.Options.Index = json.RawMessage(`{
  "buf_size": 1048576
}`)
	cfg.Options.Extractor = json.RawMessage(`{
  "endpoint": "https://api.thomsonreuters.com/permid/calais",
  "access_token_env": "CALAIS_ACCESS_TOKEN",
  "access_token": "",
  "timeout_seconds": 60,
  "output_format": "application/json",
  "user_agent": "Calais Rest Client",
  "extra_headers": {}
}`)
	cfg.Options.Decoder = json.RawMessage(`{
  "type_field": "_type",
  "name_field": "name"
}`)
	// delimited 装配器无配置项，保持空对象
	cfg.Options.Assembler = json.RawMessage(`{}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "",
  "atomic": true,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	return cfg
}
