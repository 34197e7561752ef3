package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML/TOML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	Logging Logging `json:"logging"`
	Metrics Metrics `json:"metrics"`

	// PauseMS: 相邻两次抽取请求起点的最小间隔（毫秒）。0 表示不限流；-1 表示未设置。
	PauseMS int `json:"pause_ms"`
	// Retry: 429 限流重试策略；负值表示未设置（使用抽取器默认：500ms、不限次数）。
	Retry Retry `json:"retry"`

	Extract Extract `json:"extract"`
	Sample  Sample  `json:"sample"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`
	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 日志等级与文件路径（轮转策略固定）。
type Logging struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

// Metrics: 运行结束时导出的 textfile 路径（为空不导出）。
type Metrics struct {
	File string `json:"file"`
}

// Retry: 注入到抽取器 options.retry 的覆盖项。
type Retry struct {
	MaxAttempts int     `json:"max_attempts"`
	DelayMS     int     `json:"delay_ms"`
	Multiplier  float64 `json:"multiplier"`
	MaxDelayMS  int     `json:"max_delay_ms"`
}

// Extract: 抽取模式的输入输出。
type Extract struct {
	Input       string `json:"input"`
	Output      string `json:"output"`
	AccessToken string `json:"access_token"`
}

// Sample: 抽样模式的输入输出与参数。
type Sample struct {
	Corpus    string `json:"corpus"`
	Prior     string `json:"prior"`
	TextOut   string `json:"text_out"`
	EntityOut string `json:"entity_out"`
	// Count: 抽样数量；-1 表示未设置。
	Count int `json:"count"`
	// Seed: 固定随机种子；为空时每次运行随机。
	Seed *uint64 `json:"seed"`
	// Types: 历史结果中保留的实体类型；为空使用加载器默认。
	Types []string `json:"types"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Corpus    string `json:"corpus"`
	Index     string `json:"index"`
	Extractor string `json:"extractor"`
	Decoder   string `json:"decoder"`
	Assembler string `json:"assembler"`
	Writer    string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Corpus    json.RawMessage `json:"corpus"`
	Index     json.RawMessage `json:"index"`
	Extractor json.RawMessage `json:"extractor"`
	Decoder   json.RawMessage `json:"decoder"`
	Assembler json.RawMessage `json:"assembler"`
	Writer    json.RawMessage `json:"writer"`
}
