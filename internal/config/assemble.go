package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/sjson"

	"calaisner/internal/pipeline"
	"calaisner/internal/rate"
	"calaisner/internal/sampler"
	"calaisner/pkg/registry"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if cfg.PauseMS < 0 {
		return errors.New("config: pause_ms must be >= 0")
	}
	if cfg.Retry.Multiplier < 0 {
		return errors.New("config: retry.multiplier must be >= 0")
	}
	if cfg.Retry.Multiplier > 0 && cfg.Retry.Multiplier < 1 {
		return fmt.Errorf("config: retry.multiplier %.2f must be >= 1", cfg.Retry.Multiplier)
	}
	if cfg.Sample.Count < -1 {
		return errors.New("config: sample.count must be >= 0")
	}
	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: logging.level %q unknown", cfg.Logging.Level)
	}
	// 组件名若为空，使用默认名（由 Defaults() 提供）。此处只要最终有值即可。
	d := Defaults().Components
	if name := effName(cfg.Components.Corpus, d.Corpus); registry.Corpus[name] == nil {
		return fmt.Errorf("config: corpus %q not registered", name)
	}
	if name := effName(cfg.Components.Index, d.Index); registry.Index[name] == nil {
		return fmt.Errorf("config: index %q not registered", name)
	}
	if name := effName(cfg.Components.Extractor, d.Extractor); registry.Extractor[name] == nil {
		return fmt.Errorf("config: extractor %q not registered", name)
	}
	if name := effName(cfg.Components.Decoder, d.Decoder); registry.Decoder[name] == nil {
		return fmt.Errorf("config: decoder %q not registered", name)
	}
	if name := effName(cfg.Components.Assembler, d.Assembler); registry.Assembler[name] == nil {
		return fmt.Errorf("config: assembler %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只对 raw JSON 做定点注入。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	// 有效名称
	d := Defaults().Components
	cn := effName(cfg.Components.Corpus, d.Corpus)
	in := effName(cfg.Components.Index, d.Index)
	en := effName(cfg.Components.Extractor, d.Extractor)
	dn := effName(cfg.Components.Decoder, d.Decoder)
	an := effName(cfg.Components.Assembler, d.Assembler)
	wn := effName(cfg.Components.Writer, d.Writer)

	exOpts, err := ExtractorOptions(en, cfg)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	idxOpts := cfg.Options.Index
	if len(cfg.Sample.Types) > 0 {
		if idxOpts, err = setRaw(idxOpts, "types", cfg.Sample.Types); err != nil {
			return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: index options: %w", err)
		}
	}

	// 构造实例
	corpus, err := registry.Corpus[cn](cfg.Options.Corpus)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: corpus %q: %w", cn, err)
	}
	index, err := registry.Index[in](idxOpts)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: index %q: %w", in, err)
	}
	ex, err := registry.Extractor[en](exOpts)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: extractor %q: %w", en, err)
	}
	dec, err := registry.Decoder[dn](cfg.Options.Decoder)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: decoder %q: %w", dn, err)
	}
	asm, err := registry.Assembler[an](cfg.Options.Assembler)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: assembler %q: %w", an, err)
	}
	w, err := registry.Writer[wn](cfg.Options.Writer)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: writer %q: %w", wn, err)
	}

	comp := pipeline.Components{
		Corpus:    corpus,
		Index:     index,
		Extractor: ex,
		Decoder:   dec,
		Assembler: asm,
		Writer:    w,
	}

	smp := sampler.New(nil)
	if cfg.Sample.Seed != nil {
		smp = sampler.Seeded(*cfg.Sample.Seed)
	}
	set := pipeline.Settings{
		CorpusPath:    cfg.Extract.Input,
		OutputPath:    cfg.Extract.Output,
		Gate:          rate.NewPacer(time.Duration(cfg.PauseMS) * time.Millisecond),
		Sampler:       smp,
		ExtractorName: en,
	}
	if cfg.Sample.Corpus != "" {
		set.CorpusPath = cfg.Sample.Corpus
	}
	set.PriorPath = cfg.Sample.Prior
	set.TextOut = cfg.Sample.TextOut
	set.EntityOut = cfg.Sample.EntityOut
	set.Count = cfg.Sample.Count
	return comp, set, nil
}

// ExtractorOptions 返回注入了访问令牌与重试覆盖项的抽取器原样选项。
// 仅 calais 接受这些键；其余实现原样返回。
func ExtractorOptions(name string, cfg Config) (json.RawMessage, error) {
	raw := cloneRaw(cfg.Options.Extractor)
	if name != "calais" {
		return raw, nil
	}
	var err error
	set := func(path string, v any) {
		if err == nil {
			raw, err = setRaw(raw, path, v)
		}
	}
	if cfg.Extract.AccessToken != "" {
		set("access_token", cfg.Extract.AccessToken)
	}
	if cfg.Retry.MaxAttempts >= 0 {
		set("retry.max_attempts", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.DelayMS >= 0 {
		set("retry.delay_ms", cfg.Retry.DelayMS)
	}
	if cfg.Retry.Multiplier > 0 {
		set("retry.multiplier", cfg.Retry.Multiplier)
	}
	if cfg.Retry.MaxDelayMS >= 0 {
		set("retry.max_delay_ms", cfg.Retry.MaxDelayMS)
	}
	if err != nil {
		return nil, fmt.Errorf("config: extractor options: %w", err)
	}
	return raw, nil
}

// setRaw: 在原样 JSON 上设置一个路径（空输入视为 {}）。
func setRaw(raw json.RawMessage, path string, v any) (json.RawMessage, error) {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	out, err := sjson.SetBytes(raw, path, v)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
