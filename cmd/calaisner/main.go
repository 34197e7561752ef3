package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	cfgpkg "calaisner/internal/config"
	"calaisner/internal/diag"
	"calaisner/internal/pipeline"
)

var (
	extractRun = pipeline.Extract
	sampleRun  = pipeline.Sample
)

// 退出码
const (
	exitOK      = 0
	exitRuntime = 1
	exitUsage   = 2
	exitConfig  = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError 携带退出码；msg 已输出时 err 可为空。
type exitError struct {
	code  int
	err   error
	usage string
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// globals: 所有子命令共享的持久旗标。
type globals struct {
	config      string
	logLevel    string
	metricsFile string
	status      bool
	stdout      io.Writer
	stderr      io.Writer
}

func run(args []string, stdout, stderr io.Writer) int {
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g := &globals{stdout: stdout, stderr: stderr}
	root := newRootCmd(g)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fprintf(stderr, "%v\n", ee.err)
		}
		if ee.usage != "" {
			fprintf(stderr, "%s", ee.usage)
		}
		return ee.code
	}
	// cobra 参数个数/旗标解析错误
	fprintf(stderr, "Error: %v\n", err)
	if cmd != nil {
		fprintf(stderr, "%s", cmd.UsageString())
	}
	return exitUsage
}

func newRootCmd(g *globals) *cobra.Command {
	root := &cobra.Command{
		Use:   "calaisner",
		Short: "Calais named-entity extraction and prior-result sampling",
		Long: `calaisner submits news items to the Calais entity-extraction service and
writes the Organization/Person entities it finds as id,type,name CSV rows.

The sample subcommand draws a random subset of a corpus that already has
extracted entities and writes the texts (TSV) and entities (CSV) side by side.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.config, "config", "", "配置文件路径（.json/.yaml/.toml）；缺省读取 ./calaisner.{json,yaml,yml,toml}（若存在）")
	pf.StringVar(&g.logLevel, "log-level", "", "日志级别 debug|info|warn|error（覆盖配置）")
	pf.StringVar(&g.metricsFile, "metrics-file", "", "运行结束时以 textfile 格式导出指标")
	pf.BoolVar(&g.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")

	root.AddCommand(newExtractCmd(g), newSampleCmd(g), newInitConfigCmd(g))
	return root
}

func newExtractCmd(g *globals) *cobra.Command {
	var (
		client      string
		pauseMS     int
		maxAttempts int
		retryDelay  int
	)
	cmd := &cobra.Command{
		Use:   "extract <inputFile> <outputFile> <accessKey>",
		Short: "Extract entities for every corpus record and write id,type,name CSV",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFile("input", args[0]); err != nil {
				return usageError(cmd, err)
			}
			over := cfgpkg.Unset()
			over.Extract = cfgpkg.Extract{Input: args[0], Output: args[1], AccessToken: args[2]}
			over.Components.Extractor = strings.TrimSpace(client)
			over.PauseMS = pauseMS
			over.Retry.MaxAttempts = maxAttempts
			over.Retry.DelayMS = retryDelay
			return execute(cmd.Context(), g, "extract", over)
		},
	}
	f := cmd.Flags()
	f.StringVar(&client, "client", "", "抽取器实现名 calais|mock|flaky（覆盖配置）")
	// 以下数值旗标默认 -1 表示“未覆盖”，允许显式设置为 0。
	f.IntVar(&pauseMS, "pause", -1, "相邻请求的最小间隔（毫秒；0 表示不限流）")
	f.IntVar(&maxAttempts, "max-attempts", -1, "429 限流时的最大尝试次数（0 表示不限）")
	f.IntVar(&retryDelay, "retry-delay", -1, "429 限流后的重试等待（毫秒）")
	return cmd
}

func newSampleCmd(g *globals) *cobra.Command {
	var (
		seed  uint64
		types []string
	)
	cmd := &cobra.Command{
		Use:   "sample <corpusFile> <priorResultsFile> <sampleTextOut> <sampleEntityOut> <count>",
		Short: "Draw count records with known entities and write their texts and entities",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFile("corpus", args[0]); err != nil {
				return usageError(cmd, err)
			}
			if err := requireFile("prior results", args[1]); err != nil {
				return usageError(cmd, err)
			}
			n, err := strconv.Atoi(strings.TrimSpace(args[4]))
			if err != nil || n < 0 {
				return usageError(cmd, fmt.Errorf("count must be a non-negative integer: %q", args[4]))
			}
			over := cfgpkg.Unset()
			over.Sample.Corpus = args[0]
			over.Sample.Prior = args[1]
			over.Sample.TextOut = args[2]
			over.Sample.EntityOut = args[3]
			over.Sample.Count = n
			if cmd.Flags().Changed("seed") {
				over.Sample.Seed = &seed
			}
			over.Sample.Types = types
			return execute(cmd.Context(), g, "sample", over)
		},
	}
	f := cmd.Flags()
	f.Uint64Var(&seed, "seed", 0, "固定随机种子（便于复现）")
	f.StringSliceVar(&types, "types", nil, "历史结果中保留的实体类型（默认 Organization,Person）")
	return cmd
}

func newInitConfigCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "Write a default calaisner.json and .env template (existing files are kept)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = strings.TrimSpace(args[0])
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return &exitError{code: exitConfig, err: fmt.Errorf("生成默认配置失败: %w", err)}
			}
			cfgPath := filepath.Join(dir, "calaisner.json")
			if err := writeConfig(cfgPath, cfgpkg.DefaultTemplateConfig()); err != nil {
				return &exitError{code: exitConfig, err: fmt.Errorf("生成默认配置失败: %w", err)}
			}
			// 生成 .env 模板（不覆盖已存在文件）。
			if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
				fprintf(g.stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
			}
			fprintf(g.stdout, "%s\n", cfgPath)
			return nil
		},
	}
}

// execute: 配置分层合并 → 校验 → 装配 → 运行。
func execute(ctx context.Context, g *globals, mode string, overCLI cfgpkg.Config) error {
	start := time.Now()
	corrID := uuid.NewString()
	// 先占位默认，稍后在解析/合并配置后重建 logger 以使用最终 level 与路径
	logger := diag.NewLogger(corrID, "info", os.Getenv("CALAISNER_LOG_FILE"))

	cfg, err := loadConfig(g.config)
	if err != nil {
		logger.Error("config", string(diag.Classify(err)), "load failed", &start)
		_ = logger.Close()
		return &exitError{code: exitConfig, err: fmt.Errorf("配置解析失败: %w", err)}
	}
	if strings.TrimSpace(g.logLevel) != "" {
		overCLI.Logging.Level = strings.TrimSpace(g.logLevel)
	}
	if strings.TrimSpace(g.metricsFile) != "" {
		overCLI.Metrics.File = strings.TrimSpace(g.metricsFile)
	}
	cfg = cfgpkg.Merge(cfg, overCLI)

	if err := cfgpkg.Validate(cfg); err != nil {
		// 打印有效配置，便于诊断
		_ = dumpConfig(g.stderr, cfg)
		logger.Error("config", string(diag.Classify(err)), "validate failed", &start)
		_ = logger.Close()
		return &exitError{code: exitConfig, err: fmt.Errorf("配置校验失败: %w", err)}
	}
	_ = logger.Close()
	logger = diag.NewLogger(corrID, cfg.Logging.Level, cfg.Logging.File)
	defer logger.Close()

	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		logger.Error("config", string(diag.Classify(err)), "assemble failed", &start)
		return &exitError{code: exitConfig, err: fmt.Errorf("装配失败: %w", err)}
	}

	// 终端信息提示（非日志）：按 CLI 启用，默认开启
	term := diag.NewTerminal(g.stderr, g.status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)

	logger.DebugStart("config", "effective", "", effectiveKV(cfg, mode))

	t := logger.Start("pipeline", mode)
	var runErr error
	switch mode {
	case "extract":
		var sum pipeline.ExtractSummary
		sum, runErr = extractRun(ctx, comp, set, logger)
		for _, f := range sum.Failures {
			fprintf(g.stderr, "record %s failed: %v\n", f.ID, f.Err)
		}
		if runErr == nil {
			fprintf(g.stdout, "Records : %d | ok %d | failed %d | rows %d\n", sum.Records, sum.Succeeded, sum.Failed, sum.Rows)
		}
	case "sample":
		var sum pipeline.SampleSummary
		sum, runErr = sampleRun(ctx, comp, set, logger)
		if runErr == nil {
			fprintf(g.stdout, "Sampled : %d of %d eligible | rows %d\n", sum.Drawn, sum.Eligible, sum.Rows)
			fprintf(g.stdout, "Skipped line : %d\n", sum.Skipped)
		}
	default:
		runErr = fmt.Errorf("unknown mode %q", mode)
	}

	if runErr != nil {
		// 分类到最接近的退出码（运行期错误）
		code := string(diag.Classify(runErr))
		logger.Error("pipeline", code, "first error: "+runErr.Error(), &start)
		diag.IncOp("pipeline", "error", "error")
		if code != string(diag.CodeUnknown) {
			diag.IncError("pipeline", code)
		}
		writeMetrics(g.stderr, cfg.Metrics.File)
		if errors.Is(runErr, context.Canceled) {
			return &exitError{code: exitRuntime}
		}
		return &exitError{code: exitRuntime, err: fmt.Errorf("运行失败: %w", runErr)}
	}
	t.Finish(mode, 0)
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())
	writeMetrics(g.stderr, cfg.Metrics.File)
	return nil
}

// loadConfig: Defaults → 文件 → CALAISNER_CONFIG_JSON → 环境变量。
func loadConfig(path string) (cfgpkg.Config, error) {
	cfg := cfgpkg.Defaults()
	if path == "" {
		path = os.Getenv("CALAISNER_CONFIG_FILE")
	}
	// 默认读取工作目录下 calaisner.*（若存在）
	if path == "" {
		path = cfgpkg.FindDefault(".")
	}
	if path != "" {
		base, err := cfgpkg.LoadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = cfgpkg.Merge(cfg, base)
	}
	if s := os.Getenv("CALAISNER_CONFIG_JSON"); strings.TrimSpace(s) != "" {
		base, err := cfgpkg.LoadJSON([]byte(s))
		if err != nil {
			return cfg, fmt.Errorf("CALAISNER_CONFIG_JSON: %w", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}
	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, err
	}
	return cfgpkg.Merge(cfg, overEnv), nil
}

// effectiveKV: 运行时配置摘要（不含令牌）。
func effectiveKV(cfg cfgpkg.Config, mode string) map[string]string {
	kv := map[string]string{
		"mode":      mode,
		"pause_ms":  strconv.Itoa(cfg.PauseMS),
		"corpus":    cfg.Components.Corpus,
		"index":     cfg.Components.Index,
		"extractor": cfg.Components.Extractor,
		"decoder":   cfg.Components.Decoder,
		"assembler": cfg.Components.Assembler,
		"writer":    cfg.Components.Writer,
	}
	if ep := gjson.GetBytes(cfg.Options.Extractor, "endpoint").String(); ep != "" {
		kv["endpoint"] = ep
	}
	if cfg.Retry.MaxAttempts >= 0 {
		kv["retry_max_attempts"] = strconv.Itoa(cfg.Retry.MaxAttempts)
	}
	kv["access_token_set"] = strconv.FormatBool(cfg.Extract.AccessToken != "")
	return kv
}

func writeMetrics(stderr io.Writer, path string) {
	if err := diag.WriteMetrics(path); err != nil {
		fprintf(stderr, "提示：指标导出失败：%v\n", err)
	}
}

func usageError(cmd *cobra.Command, err error) error {
	return &exitError{code: exitUsage, err: err, usage: cmd.UsageString()}
}

// requireFile: 位置参数指向的输入文件必须存在且不是目录。
func requireFile(what, path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s file not found: %s", what, path)
	}
	if st.IsDir() {
		return fmt.Errorf("%s file is a directory: %s", what, path)
	}
	return nil
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(w io.Writer, c cfgpkg.Config) error {
	c.Extract.AccessToken = redact(c.Extract.AccessToken)
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	fprintf(w, "有效配置:\n%s\n", b)
	return nil
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	// 不覆盖已存在文件
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

// loadDotEnv 读取 .env 并注入进程环境；文件不存在时忽略，已存在的环境变量不覆盖。
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
// 仅创建文件；不覆盖，不合并。
func writeDotEnv(path string) error {
	var b strings.Builder
	b.WriteString("# calaisner .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > CALAISNER_CONFIG_JSON > 配置文件\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源（可二选一）\n")
	b.WriteString("CALAISNER_CONFIG_FILE=\n")
	b.WriteString("CALAISNER_CONFIG_JSON=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{
		"LOG_LEVEL", "LOG_FILE", "METRICS_FILE", "PAUSE_MS",
		"RETRY_MAX_ATTEMPTS", "RETRY_DELAY_MS", "RETRY_MULTIPLIER", "RETRY_MAX_DELAY_MS",
		"SAMPLE_SEED", "SAMPLE_TYPES",
	} {
		b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 组件选择\n")
	for _, k := range []string{"CORPUS", "INDEX", "EXTRACTOR", "DECODER", "ASSEMBLER", "WRITER"} {
		b.WriteString(cfgpkg.EnvPrefix + "COMPONENTS_" + k + "=\n")
	}
	b.WriteString("\n# Calais 访问令牌（由抽取器读取；命令行 accessKey 优先）\n")
	b.WriteString("CALAIS_ACCESS_TOKEN=\n")

	// 写入（不覆盖）
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}
