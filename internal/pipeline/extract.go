package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"calaisner/internal/diag"
	"calaisner/pkg/contract"
)

// ExtractSummary: 一轮抽取的结果统计。
type ExtractSummary struct {
	Records   int
	Succeeded int
	Failed    int
	Rows      int
	// Failures 按语料顺序列出失败记录及原因。
	Failures []contract.Result
}

// Extract 执行抽取流水线：Corpus → (Gate) → Extractor → Decoder → Assembler → Writer。
// 语料加载失败立即返回；单条记录失败只记入结果，不中断本轮。
// ctx 取消时放弃本轮且不写出。
func Extract(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (ExtractSummary, error) {
	var sum ExtractSummary
	if comp.Corpus == nil || comp.Extractor == nil || comp.Decoder == nil || comp.Assembler == nil || comp.Writer == nil {
		return sum, errMissingComponents
	}
	if err := requirePath("corpus", set.CorpusPath); err != nil {
		return sum, err
	}
	if err := requirePath("output", set.OutputPath); err != nil {
		return sum, err
	}

	ct := logger.StartWithKV("corpus", "load", "", map[string]string{"path": set.CorpusPath})
	recs, err := comp.Corpus.Load(ctx, set.CorpusPath, nil)
	if err != nil {
		fail(logger, "corpus", "load failed", "", err)
		return sum, fmt.Errorf("corpus: %w", err)
	}
	done(ct, "corpus", "load", int64(len(recs)))

	term := diag.GetTerminal()
	term.RunStart("extract", len(recs), set.ExtractorName)
	runStart := time.Now()

	results := make([]contract.Result, 0, len(recs))
	for _, rec := range recs {
		res := extractOne(ctx, comp, set, logger, rec)
		if cerr := ctx.Err(); cerr != nil {
			term.RunFinish(false, time.Since(runStart))
			return sum, cerr
		}
		term.Progress(string(rec.ID), res.OK())
		results = append(results, res)
	}

	// 汇报：逐条记录失败原因
	sum.Records = len(results)
	for _, res := range results {
		if res.OK() {
			sum.Succeeded++
			continue
		}
		sum.Failed++
		sum.Failures = append(sum.Failures, res)
		report(logger, res)
	}

	rows := contract.Rows(results)
	sum.Rows = len(rows)
	if err := persist(ctx, comp.Writer, logger, set.OutputPath, func() (io.Reader, error) {
		return comp.Assembler.Entities(ctx, rows)
	}); err != nil {
		term.RunFinish(false, time.Since(runStart))
		return sum, err
	}
	term.RunFinish(true, time.Since(runStart))
	logger.InfoFinish("extract", "run", runStart, int64(sum.Rows))
	return sum, nil
}

// extractOne: 单条记录的 Gate → Extract → Decode。错误折叠进 Result。
func extractOne(ctx context.Context, comp Components, set Settings, logger *diag.Logger, rec contract.Record) contract.Result {
	id := string(rec.ID)
	if set.Gate != nil {
		if err := set.Gate.Wait(ctx); err != nil {
			return contract.Result{ID: rec.ID, Err: fmt.Errorf("gate: %w", err)}
		}
	}

	octx := contract.WithObserver(ctx, func(a contract.Attempt) { observe(logger, id, a) })

	et := logger.StartWithKV("extractor", "extract", id, map[string]string{"bytes": strconv.Itoa(len(rec.Text))})
	raw, err := comp.Extractor.Extract(octx, rec.Text)
	if err != nil {
		diag.IncOp("extractor", "error", "error")
		return contract.Result{ID: rec.ID, Err: fmt.Errorf("extract: %w", err)}
	}
	done(et, "extractor", "extract", int64(len(raw.Text)))

	dt := logger.StartWith("decoder", "decode", id)
	ents, err := comp.Decoder.Decode(ctx, raw)
	if err != nil {
		diag.IncOp("decoder", "error", "error")
		return contract.Result{ID: rec.ID, Err: fmt.Errorf("decode: %w", err)}
	}
	done(dt, "decoder", "decode", int64(len(ents)))
	logger.DebugStart("extract", "record ok", id, map[string]string{"entities": strconv.Itoa(len(ents))})
	return contract.Result{ID: rec.ID, Entities: ents}
}

// observe 记录每次上游尝试：成功为 info，重试与失败为 warn 并计入失败尝试指标。
func observe(logger *diag.Logger, id string, a contract.Attempt) {
	kv := map[string]string{"http_status": strconv.Itoa(a.Status)}
	if a.Body != "" {
		kv["upstream_msg"] = clip(a.Body, 200)
	}
	if a.Err == nil && !a.Retry {
		logger.Attempt("extractor", "", "attempt ok", id, a.N, false, kv)
		return
	}
	diag.IncRetry("extractor", a.Status)
	if a.Retry {
		kv["wait_ms"] = strconv.FormatInt(a.Wait.Milliseconds(), 10)
		logger.Retry("extractor", string(diag.CodeBudget), "attempt failed; retrying", id, a.N, kv)
		return
	}
	logger.Attempt("extractor", string(diag.Classify(a.Err)), "attempt failed", id, a.N, true, kv)
}

// report 记录一条失败记录；上游 HTTP 错误附带状态码与响应片段。
func report(logger *diag.Logger, res contract.Result) {
	comp := "extractor"
	if errors.Is(res.Err, contract.ErrDecode) {
		comp = "decoder"
	}
	code := diag.Classify(res.Err)
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
	var ue contract.UpstreamError
	if errors.As(res.Err, &ue) {
		kv := map[string]string{"http_status": strconv.Itoa(ue.UpstreamStatus())}
		if m := ue.UpstreamMessage(); m != "" {
			kv["upstream_msg"] = clip(m, 200)
		}
		logger.ErrorWithKV(comp, string(code), res.Err.Error(), nil, string(res.ID), kv)
		return
	}
	logger.ErrorWith(comp, string(code), res.Err.Error(), nil, string(res.ID))
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
