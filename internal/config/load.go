package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvPrefix: 环境变量覆盖前缀。
const EnvPrefix = "CALAISNER_"

// DefaultPauseMS: 相邻请求的默认间隔。
const DefaultPauseMS = 200

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	return Config{
		PauseMS: DefaultPauseMS,
		Retry:   Retry{MaxAttempts: -1, DelayMS: -1, MaxDelayMS: -1},
		Logging: Logging{Level: "info"},
		Components: Components{
			Corpus:    "json",
			Index:     "csv",
			Extractor: "calais",
			Decoder:   "calais",
			Assembler: "delimited",
			Writer:    "fs",
		},
	}
}

// Unset 返回“全部未设置”的覆盖层：0 具有语义的字段以 -1 占位，
// 以便 Merge 区分“未覆盖”和“显式设置为 0”。
func Unset() Config {
	return Config{
		PauseMS: -1,
		Retry:   Retry{MaxAttempts: -1, DelayMS: -1, MaxDelayMS: -1},
		Sample:  Sample{Count: -1},
	}
}

// DefaultFileNames: 未显式指定时在工作目录查找的配置文件（按顺序）。
var DefaultFileNames = []string{"calaisner.json", "calaisner.yaml", "calaisner.yml", "calaisner.toml"}

// FindDefault 返回 dir 下第一个存在的默认配置文件；不存在返回空串。
func FindDefault(dir string) string {
	for _, n := range DefaultFileNames {
		p := filepath.Join(dir, n)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return ""
}

// LoadFile 按扩展名解析配置文件（.json/.yaml/.yml/.toml）。
// YAML/TOML 先转为 JSON 再严格解码，未知字段同样报错。
func LoadFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", "":
		return LoadJSON(b)
	case ".yaml", ".yml":
		var m map[string]any
		if err := yaml.Unmarshal(b, &m); err != nil {
			return Config{}, fmt.Errorf("config yaml %s: %w", path, err)
		}
		return fromMap(m)
	case ".toml":
		var m map[string]any
		if _, err := toml.Decode(string(b), &m); err != nil {
			return Config{}, fmt.Errorf("config toml %s: %w", path, err)
		}
		return fromMap(m)
	default:
		return Config{}, fmt.Errorf("config: unsupported file type %q", filepath.Ext(path))
	}
}

func fromMap(m map[string]any) (Config, error) {
	if m == nil {
		return Unset(), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return Config{}, err
	}
	return LoadJSON(b)
}

// LoadJSON 从原始 JSON 解析 Config（严格拒绝未知字段）。
// 未出现的字段保持 Unset 占位。
func LoadJSON(raw []byte) (Config, error) {
	cfg := Unset()
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}
	if strings.TrimSpace(over.Logging.File) != "" {
		out.Logging.File = strings.TrimSpace(over.Logging.File)
	}
	if strings.TrimSpace(over.Metrics.File) != "" {
		out.Metrics.File = strings.TrimSpace(over.Metrics.File)
	}

	// 0 具有语义的字段：>=0 视为“存在”
	if over.PauseMS >= 0 {
		out.PauseMS = over.PauseMS
	}
	if over.Retry.MaxAttempts >= 0 {
		out.Retry.MaxAttempts = over.Retry.MaxAttempts
	}
	if over.Retry.DelayMS >= 0 {
		out.Retry.DelayMS = over.Retry.DelayMS
	}
	if over.Retry.Multiplier > 0 {
		out.Retry.Multiplier = over.Retry.Multiplier
	}
	if over.Retry.MaxDelayMS >= 0 {
		out.Retry.MaxDelayMS = over.Retry.MaxDelayMS
	}

	if over.Extract.Input != "" {
		out.Extract.Input = over.Extract.Input
	}
	if over.Extract.Output != "" {
		out.Extract.Output = over.Extract.Output
	}
	if over.Extract.AccessToken != "" {
		out.Extract.AccessToken = over.Extract.AccessToken
	}

	if over.Sample.Corpus != "" {
		out.Sample.Corpus = over.Sample.Corpus
	}
	if over.Sample.Prior != "" {
		out.Sample.Prior = over.Sample.Prior
	}
	if over.Sample.TextOut != "" {
		out.Sample.TextOut = over.Sample.TextOut
	}
	if over.Sample.EntityOut != "" {
		out.Sample.EntityOut = over.Sample.EntityOut
	}
	if over.Sample.Count >= 0 {
		out.Sample.Count = over.Sample.Count
	}
	if over.Sample.Seed != nil {
		s := *over.Sample.Seed
		out.Sample.Seed = &s
	}
	if len(over.Sample.Types) > 0 {
		out.Sample.Types = cloneStrings(over.Sample.Types)
	}

	// 组件名（空不覆盖）
	if over.Components.Corpus != "" {
		out.Components.Corpus = over.Components.Corpus
	}
	if over.Components.Index != "" {
		out.Components.Index = over.Components.Index
	}
	if over.Components.Extractor != "" {
		out.Components.Extractor = over.Components.Extractor
	}
	if over.Components.Decoder != "" {
		out.Components.Decoder = over.Components.Decoder
	}
	if over.Components.Assembler != "" {
		out.Components.Assembler = over.Components.Assembler
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}

	// Options（完整替换对应键）
	if len(over.Options.Corpus) > 0 {
		out.Options.Corpus = cloneRaw(over.Options.Corpus)
	}
	if len(over.Options.Index) > 0 {
		out.Options.Index = cloneRaw(over.Options.Index)
	}
	if len(over.Options.Extractor) > 0 {
		out.Options.Extractor = cloneRaw(over.Options.Extractor)
	}
	if len(over.Options.Decoder) > 0 {
		out.Options.Decoder = cloneRaw(over.Options.Decoder)
	}
	if len(over.Options.Assembler) > 0 {
		out.Options.Assembler = cloneRaw(over.Options.Assembler)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 CALAISNER_；无法解析的数值忽略。
// 支持：LOG_LEVEL, LOG_FILE, METRICS_FILE, PAUSE_MS, RETRY_*, ACCESS_TOKEN,
// SAMPLE_SEED, SAMPLE_TYPES, COMPONENTS_*, OPTIONS_*_JSON
func EnvOverlay(environ []string) (Config, error) {
	over := Unset()
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := strings.TrimPrefix(kv[:eq], EnvPrefix)
		val := kv[eq+1:]
		tv := strings.TrimSpace(val)
		switch key {
		case "LOG_LEVEL":
			over.Logging.Level = tv
		case "LOG_FILE":
			over.Logging.File = tv
		case "METRICS_FILE":
			over.Metrics.File = tv
		case "PAUSE_MS":
			if v, err := atoi(val); err == nil {
				over.PauseMS = v
			}
		case "RETRY_MAX_ATTEMPTS":
			if v, err := atoi(val); err == nil {
				over.Retry.MaxAttempts = v
			}
		case "RETRY_DELAY_MS":
			if v, err := atoi(val); err == nil {
				over.Retry.DelayMS = v
			}
		case "RETRY_MULTIPLIER":
			if v, err := strconv.ParseFloat(tv, 64); err == nil {
				over.Retry.Multiplier = v
			}
		case "RETRY_MAX_DELAY_MS":
			if v, err := atoi(val); err == nil {
				over.Retry.MaxDelayMS = v
			}
		case "ACCESS_TOKEN":
			over.Extract.AccessToken = tv
		case "SAMPLE_SEED":
			if v, err := strconv.ParseUint(tv, 10, 64); err == nil {
				over.Sample.Seed = &v
			}
		case "SAMPLE_TYPES":
			over.Sample.Types = splitComma(val)
		case "COMPONENTS_CORPUS":
			over.Components.Corpus = tv
		case "COMPONENTS_INDEX":
			over.Components.Index = tv
		case "COMPONENTS_EXTRACTOR":
			over.Components.Extractor = tv
		case "COMPONENTS_DECODER":
			over.Components.Decoder = tv
		case "COMPONENTS_ASSEMBLER":
			over.Components.Assembler = tv
		case "COMPONENTS_WRITER":
			over.Components.Writer = tv
		default:
			// OPTIONS_<NAME>_JSON：原样 JSON；空值视为未设置
			if name, ok := strings.CutPrefix(key, "OPTIONS_"); ok && strings.HasSuffix(name, "_JSON") && tv != "" {
				if !json.Valid([]byte(tv)) {
					return over, fmt.Errorf("config: env %s%s is not valid JSON", EnvPrefix, key)
				}
				raw := json.RawMessage(tv)
				switch strings.TrimSuffix(name, "_JSON") {
				case "CORPUS":
					over.Options.Corpus = raw
				case "INDEX":
					over.Options.Index = raw
				case "EXTRACTOR":
					over.Options.Extractor = raw
				case "DECODER":
					over.Options.Decoder = raw
				case "ASSEMBLER":
					over.Options.Assembler = raw
				case "WRITER":
					over.Options.Writer = raw
				}
			}
		}
	}
	return over, nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}
