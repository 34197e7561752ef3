package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"calaisner/internal/diag"
	"calaisner/internal/rate"
	"calaisner/internal/sampler"
	"calaisner/pkg/contract"
)

// - 顺序执行：同一时刻至多一个在途请求；请求之间由 Gate 控制节奏。
// - 单条失败不中断：抽取/解码错误折叠进 Result，整轮结束后统一汇报。
// - 一次写出：结果在内存中累积，结束后经 Assembler 渲染、由 Writer 一次落盘。

// Components 聚合运行所需的原子组件。
// Extract 不使用 Index；Sample 不使用 Extractor/Decoder。
type Components struct {
	Corpus    contract.CorpusLoader
	Index     contract.IndexLoader
	Extractor contract.Extractor
	Decoder   contract.Decoder
	Assembler contract.Assembler
	Writer    contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	// 输入
	CorpusPath string
	PriorPath  string
	// 输出：抽取模式写 OutputPath；抽样模式写 TextOut 与 EntityOut
	OutputPath string
	TextOut    string
	EntityOut  string
	// Count: 抽样数量（>=0）
	Count int
	// Gate: 请求节奏闸门（可选）；非空时每次抽取前调用 Wait
	Gate rate.Gate
	// Sampler: 抽样器；为空时使用随机种子
	Sampler *sampler.Sampler
	// ExtractorName: 仅用于日志与终端提示
	ExtractorName string
}

// fail 记录阶段错误：结构化日志 + 计数。
func fail(logger *diag.Logger, comp, msg, recordID string, err error) {
	code := diag.Classify(err)
	logger.ErrorWith(comp, string(code), fmt.Sprintf("%s: %v", msg, err), nil, recordID)
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}

// done 记录阶段完成。
func done(t *diag.Timer, comp, msg string, count int64) {
	t.Finish(msg, count)
	diag.IncOp(comp, "finish", "success")
	diag.ObserveDuration(comp, msg, t.Elapsed().Milliseconds())
}

// persist: 渲染后的流经 Writer 落盘。
func persist(ctx context.Context, w contract.Writer, logger *diag.Logger, path string, render func() (io.Reader, error)) error {
	r, err := render()
	if err != nil {
		fail(logger, "assembler", "render failed", "", err)
		return fmt.Errorf("assembler: %w", err)
	}
	wt := logger.StartWithKV("writer", "write", "", map[string]string{"path": path})
	if err := w.Write(ctx, contract.ArtifactID(path), r); err != nil {
		fail(logger, "writer", "write failed", "", err)
		return fmt.Errorf("writer %s: %w", path, err)
	}
	done(wt, "writer", "write", 0)
	return nil
}

func requirePath(name, p string) error {
	if p == "" {
		return fmt.Errorf("pipeline: %w: %s path empty", contract.ErrInvalidArgument, name)
	}
	return nil
}

var errMissingComponents = errors.New("pipeline: missing components")
