package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"calaisner/internal/diag"
	"calaisner/internal/sampler"
	"calaisner/pkg/contract"
	"calaisner/plugins/assembler/delimited"
)

// 通用桩件 ----------------------------------------------------
type stubCorpus struct {
	recs []contract.Record
	err  error
}

func (s stubCorpus) Load(ctx context.Context, path string, only contract.Index) ([]contract.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []contract.Record
	for _, r := range s.recs {
		if only != nil && !only.Has(r.ID) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

type stubIndex struct {
	idx contract.Index
	err error
}

func (s stubIndex) Load(ctx context.Context, path string) (contract.Index, error) {
	return s.idx, s.err
}

// stubExtractor 以文本为响应体；fail 中的文本返回 500。
type stubExtractor struct {
	fail  map[string]bool
	calls []string
}

func (s *stubExtractor) Extract(ctx context.Context, text string) (contract.Raw, error) {
	s.calls = append(s.calls, text)
	if s.fail[text] {
		return contract.Raw{}, &contract.ServiceError{Status: 500, Body: "boom"}
	}
	return contract.Raw{Text: text}, nil
}

// stubDecoder: 文本 "bad" 解码失败，其余产出一个 Person。
type stubDecoder struct{}

func (stubDecoder) Decode(ctx context.Context, raw contract.Raw) ([]contract.EntityPair, error) {
	if raw.Text == "bad" {
		return nil, contract.ErrDecode
	}
	return []contract.EntityPair{{Type: "Person", Name: raw.Text}}, nil
}

type memWriter struct {
	mu    sync.Mutex
	files map[contract.ArtifactID]string
}

func (w *memWriter) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.files == nil {
		w.files = map[contract.ArtifactID]string{}
	}
	w.files[id] = string(b)
	return nil
}

type countGate struct{ n int }

func (g *countGate) Wait(ctx context.Context) error { g.n++; return ctx.Err() }

func newAssembler(t *testing.T) contract.Assembler {
	t.Helper()
	a, err := delimited.New(nil)
	require.NoError(t, err)
	return a
}

func testLogger() (*diag.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return diag.NewLoggerWithSink("test", "debug", &buf), &buf
}

func recs(ids ...string) []contract.Record {
	out := make([]contract.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, contract.Record{ID: contract.RecordID(id), Text: id})
	}
	return out
}

func TestExtractSingleFailureDoesNotAbort(t *testing.T) {
	ex := &stubExtractor{fail: map[string]bool{"b": true}}
	w := &memWriter{}
	g := &countGate{}
	comp := Components{
		Corpus: stubCorpus{recs: recs("a", "b", "bad", "c")}, Extractor: ex, Decoder: stubDecoder{},
		Assembler: newAssembler(t), Writer: w,
	}
	logger, logs := testLogger()
	sum, err := Extract(context.Background(), comp, Settings{CorpusPath: "in.json", OutputPath: "out.csv", Gate: g}, logger)
	require.NoError(t, err)
	require.Equal(t, 4, sum.Records)
	require.Equal(t, 2, sum.Succeeded)
	require.Equal(t, 2, sum.Failed)
	require.Len(t, sum.Failures, 2)
	require.Equal(t, contract.RecordID("b"), sum.Failures[0].ID)
	require.ErrorIs(t, sum.Failures[0].Err, contract.ErrService)
	require.Equal(t, contract.RecordID("bad"), sum.Failures[1].ID)
	require.ErrorIs(t, sum.Failures[1].Err, contract.ErrDecode)
	require.Equal(t, 4, g.n, "每条记录前都应经过 Gate")
	require.Equal(t, []string{"a", "b", "bad", "c"}, ex.calls)
	require.Equal(t, "a,Person,a\nc,Person,c\n", w.files["out.csv"])

	// 汇报阶段带上游状态码
	require.Contains(t, logs.String(), `"http_status":"500"`)
	require.Contains(t, logs.String(), `"code":"protocol"`)
}

func TestExtractCorpusLoadErrorAborts(t *testing.T) {
	w := &memWriter{}
	comp := Components{
		Corpus: stubCorpus{err: contract.ErrLoad}, Extractor: &stubExtractor{}, Decoder: stubDecoder{},
		Assembler: newAssembler(t), Writer: w,
	}
	_, err := Extract(context.Background(), comp, Settings{CorpusPath: "x", OutputPath: "y"}, nil)
	require.ErrorIs(t, err, contract.ErrLoad)
	require.Empty(t, w.files)
}

func TestExtractCanceledWritesNothing(t *testing.T) {
	w := &memWriter{}
	comp := Components{
		Corpus: stubCorpus{recs: recs("a", "b")}, Extractor: &stubExtractor{}, Decoder: stubDecoder{},
		Assembler: newAssembler(t), Writer: w,
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Extract(ctx, comp, Settings{CorpusPath: "x", OutputPath: "y", Gate: &countGate{}}, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, w.files)
}

func TestExtractEmptyCorpusWritesEmptyFile(t *testing.T) {
	w := &memWriter{}
	comp := Components{
		Corpus: stubCorpus{}, Extractor: &stubExtractor{}, Decoder: stubDecoder{},
		Assembler: newAssembler(t), Writer: w,
	}
	sum, err := Extract(context.Background(), comp, Settings{CorpusPath: "x", OutputPath: "y"}, nil)
	require.NoError(t, err)
	require.Zero(t, sum.Records)
	v, ok := w.files["y"]
	require.True(t, ok)
	require.Empty(t, v)
}

func TestExtractSanity(t *testing.T) {
	_, err := Extract(context.Background(), Components{}, Settings{}, nil)
	require.ErrorIs(t, err, errMissingComponents)
	comp := Components{
		Corpus: stubCorpus{}, Extractor: &stubExtractor{}, Decoder: stubDecoder{},
		Assembler: newAssembler(t), Writer: &memWriter{},
	}
	_, err = Extract(context.Background(), comp, Settings{CorpusPath: "x"}, nil)
	require.ErrorIs(t, err, contract.ErrInvalidArgument)
}

func TestExtractAttemptObserverLogs(t *testing.T) {
	ex := extractorFunc(func(ctx context.Context, text string) (contract.Raw, error) {
		obs := contract.ObserverFrom(ctx)
		if text == "down" {
			err := fmt.Errorf("dial: %w", contract.ErrNetwork)
			obs(contract.Attempt{N: 1, Err: err})
			return contract.Raw{}, err
		}
		obs(contract.Attempt{N: 1, Status: 429, Body: "slow down", Retry: true})
		obs(contract.Attempt{N: 2, Status: 200})
		return contract.Raw{Text: text}, nil
	})
	comp := Components{
		Corpus: stubCorpus{recs: recs("a", "down")}, Extractor: ex, Decoder: stubDecoder{},
		Assembler: newAssembler(t), Writer: &memWriter{},
	}
	logger, logs := testLogger()
	_, err := Extract(context.Background(), comp, Settings{CorpusPath: "x", OutputPath: "y"}, logger)
	require.NoError(t, err)
	out := logs.String()
	require.Contains(t, out, `"stage":"retry"`)
	require.Contains(t, out, `"http_status":"429"`)
	require.Contains(t, out, `"upstream_msg":"slow down"`)
	require.Contains(t, out, `"wait_ms":"0"`)
	require.Contains(t, out, `"msg":"attempt ok"`)
	require.Contains(t, out, `"http_status":"200"`)
	require.Contains(t, out, `"msg":"attempt failed"`)
	require.Contains(t, out, `"code":"network"`)
}

type extractorFunc func(ctx context.Context, text string) (contract.Raw, error)

func (f extractorFunc) Extract(ctx context.Context, text string) (contract.Raw, error) {
	return f(ctx, text)
}

func sampleFixture() ([]contract.Record, contract.Index) {
	rs := recs("r0", "r1", "r2", "r3", "r4", "r5")
	idx := contract.Index{}
	idx.Add("r1", contract.EntityPair{Type: "Person", Name: "Ada"})
	idx.Add("r1", contract.EntityPair{Type: "Organization", Name: "Acme"})
	idx.Add("r3", contract.EntityPair{Type: "Person", Name: "Bob"})
	idx.Add("r5", contract.EntityPair{Type: "Organization", Name: "Zeta"})
	idx.Add("gone", contract.EntityPair{Type: "Person", Name: "Nobody"})
	return rs, idx
}

func TestSampleSameSetForBothOutputs(t *testing.T) {
	rs, idx := sampleFixture()
	w := &memWriter{}
	comp := Components{Corpus: stubCorpus{recs: rs}, Index: stubIndex{idx: idx}, Assembler: newAssembler(t), Writer: w}
	set := Settings{CorpusPath: "c.json", PriorPath: "p.csv", TextOut: "t.tsv", EntityOut: "e.csv", Count: 2, Sampler: sampler.Seeded(3)}
	sum, err := Sample(context.Background(), comp, set, nil)
	require.NoError(t, err)
	require.Equal(t, 3, sum.Eligible)
	require.Equal(t, 2, sum.Drawn)
	require.Zero(t, sum.Skipped)

	tsv := strings.Split(strings.TrimSuffix(w.files["t.tsv"], "\n"), "\n")
	require.Len(t, tsv, 2)
	ids := map[string]bool{}
	for _, line := range tsv {
		id, text, ok := strings.Cut(line, "\t")
		require.True(t, ok)
		require.Equal(t, id, text)
		ids[id] = true
	}
	// CSV 中的 id 集合与 TSV 完全一致
	for _, line := range strings.Split(strings.TrimSuffix(w.files["e.csv"], "\n"), "\n") {
		id, _, _ := strings.Cut(line, ",")
		require.True(t, ids[id], "CSV 出现未抽中的 id: %s", id)
	}
}

func TestSampleInfeasibleWritesNothing(t *testing.T) {
	rs, idx := sampleFixture()
	w := &memWriter{}
	comp := Components{Corpus: stubCorpus{recs: rs}, Index: stubIndex{idx: idx}, Assembler: newAssembler(t), Writer: w}
	set := Settings{CorpusPath: "c", PriorPath: "p", TextOut: "t", EntityOut: "e", Count: 4}
	_, err := Sample(context.Background(), comp, set, nil)
	require.ErrorIs(t, err, contract.ErrInvalidArgument)
	require.Empty(t, w.files)

	set.Count = -1
	_, err = Sample(context.Background(), comp, set, nil)
	require.ErrorIs(t, err, contract.ErrInvalidArgument)
}

func TestSampleZeroCountWritesEmptyFiles(t *testing.T) {
	rs, idx := sampleFixture()
	w := &memWriter{}
	comp := Components{Corpus: stubCorpus{recs: rs}, Index: stubIndex{idx: idx}, Assembler: newAssembler(t), Writer: w}
	set := Settings{CorpusPath: "c", PriorPath: "p", TextOut: "t", EntityOut: "e", Count: 0}
	sum, err := Sample(context.Background(), comp, set, nil)
	require.NoError(t, err)
	require.Zero(t, sum.Drawn)
	require.Equal(t, "", w.files["t"])
	require.Equal(t, "", w.files["e"])
}

func TestSampleIndexErrorAborts(t *testing.T) {
	comp := Components{Corpus: stubCorpus{}, Index: stubIndex{err: contract.ErrLoad}, Assembler: newAssembler(t), Writer: &memWriter{}}
	set := Settings{CorpusPath: "c", PriorPath: "p", TextOut: "t", EntityOut: "e"}
	_, err := Sample(context.Background(), comp, set, nil)
	require.ErrorIs(t, err, contract.ErrLoad)
}

type failWriter struct{}

func (failWriter) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	return contract.ErrPathInvalid
}

func TestPersistWriterError(t *testing.T) {
	comp := Components{
		Corpus: stubCorpus{recs: recs("a")}, Extractor: &stubExtractor{}, Decoder: stubDecoder{},
		Assembler: newAssembler(t), Writer: failWriter{},
	}
	_, err := Extract(context.Background(), comp, Settings{CorpusPath: "x", OutputPath: "../y"}, nil)
	require.ErrorIs(t, err, contract.ErrPathInvalid)
	require.False(t, errors.Is(err, contract.ErrLoad))
}
