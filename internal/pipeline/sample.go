package pipeline

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"calaisner/internal/diag"
	"calaisner/internal/sampler"
	"calaisner/pkg/contract"
)

// SampleSummary: 一次抽样的结果统计。
type SampleSummary struct {
	Eligible int
	Drawn    int
	Rows     int
	// Skipped: 抽中但在历史结果中找不到实体的记录数。
	Skipped int
}

// Sample 执行抽样流水线：Index → Corpus(仅保留有历史结果的记录) → Sampler → Assembler → Writer。
// 文本 TSV 与实体 CSV 来自同一组抽样位置；数量不可行时在写出前返回 ErrInvalidArgument。
func Sample(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (SampleSummary, error) {
	var sum SampleSummary
	if comp.Corpus == nil || comp.Index == nil || comp.Assembler == nil || comp.Writer == nil {
		return sum, errMissingComponents
	}
	for _, p := range []struct{ name, path string }{
		{"corpus", set.CorpusPath}, {"prior results", set.PriorPath},
		{"sample text", set.TextOut}, {"sample entity", set.EntityOut},
	} {
		if err := requirePath(p.name, p.path); err != nil {
			return sum, err
		}
	}
	if set.Count < 0 {
		return sum, fmt.Errorf("pipeline: %w: sample count %d", contract.ErrInvalidArgument, set.Count)
	}
	smp := set.Sampler
	if smp == nil {
		smp = sampler.New(nil)
	}
	runStart := time.Now()

	it := logger.StartWithKV("index", "load", "", map[string]string{"path": set.PriorPath})
	idx, err := comp.Index.Load(ctx, set.PriorPath)
	if err != nil {
		fail(logger, "index", "load failed", "", err)
		return sum, fmt.Errorf("prior results: %w", err)
	}
	done(it, "index", "load", int64(len(idx)))

	ct := logger.StartWithKV("corpus", "load", "", map[string]string{"path": set.CorpusPath})
	recs, err := comp.Corpus.Load(ctx, set.CorpusPath, idx)
	if err != nil {
		fail(logger, "corpus", "load failed", "", err)
		return sum, fmt.Errorf("corpus: %w", err)
	}
	done(ct, "corpus", "load", int64(len(recs)))

	sum.Eligible = sampler.Eligible(recs, idx)
	st := logger.StartWithKV("sampler", "draw", "", map[string]string{
		"count":    strconv.Itoa(set.Count),
		"eligible": strconv.Itoa(sum.Eligible),
	})
	pos, err := smp.Draw(recs, idx, set.Count)
	if err != nil {
		fail(logger, "sampler", "draw failed", "", err)
		return sum, fmt.Errorf("sampler: %w", err)
	}
	done(st, "sampler", "draw", int64(len(pos)))
	picked := sampler.Pick(recs, pos)
	sum.Drawn = len(picked)

	term := diag.GetTerminal()
	term.RunStart("sample", len(picked), "prior")

	var rows []contract.EntityRow
	for _, rec := range picked {
		ents := idx.Entities(rec.ID)
		if len(ents) == 0 {
			sum.Skipped++
			logger.DebugStart("sample", "no prior entities", string(rec.ID), nil)
			term.Progress(string(rec.ID), false)
			continue
		}
		for _, e := range ents {
			rows = append(rows, contract.EntityRow{ID: rec.ID, EntityPair: e})
		}
		term.Progress(string(rec.ID), true)
	}
	sum.Rows = len(rows)

	if err := persist(ctx, comp.Writer, logger, set.TextOut, func() (io.Reader, error) {
		return comp.Assembler.Texts(ctx, picked)
	}); err != nil {
		term.RunFinish(false, time.Since(runStart))
		return sum, err
	}
	if err := persist(ctx, comp.Writer, logger, set.EntityOut, func() (io.Reader, error) {
		return comp.Assembler.Entities(ctx, rows)
	}); err != nil {
		term.RunFinish(false, time.Since(runStart))
		return sum, err
	}
	term.RunFinish(true, time.Since(runStart))
	logger.InfoFinish("sample", "run", runStart, int64(sum.Drawn))
	return sum, nil
}
