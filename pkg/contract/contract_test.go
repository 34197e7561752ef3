package contract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNormalizeArtifactID 验证路径规范化逻辑。
func TestNormalizeArtifactID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"系统分隔符", filepath.Join("a", "b", "c"), "a/b/c"},
		{"父目录折叠", "./x/../y", "y"},
		{"空串", "", "."},
		{"Windows路径", "C:\\out\\sample.tsv", "C:/out/sample.tsv"},
		{"清理多余斜杠", "out//run///entities.csv", "out/run/entities.csv"},
		{"混合分隔符", "out\\run/./a.csv", "out/run/a.csv"},
		{"Unix绝对路径", "/tmp/../var/out.csv", "/var/out.csv"},
		{"逃逸保留", "a\\..\\..\\b", "../b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, ArtifactID(tt.want), NormalizeArtifactID(tt.input))
		})
	}
}

func TestSanitize(t *testing.T) {
	require.Equal(t, "abc", TSVField("a\tb\nc"))
	require.Equal(t, "ab", TSVField("a\r\n\tb"))
	// CSV 保留逗号与制表符，仅去换行
	require.Equal(t, "Acme, Inc.\tx", CSVField("Acme,\n Inc.\tx"))
	require.Equal(t, "line1line2", CSVField("line1\r\nline2"))
}

func TestServiceErrorClassification(t *testing.T) {
	err := fmt.Errorf("extract: %w", &ServiceError{Status: 503, Body: "busy"})
	require.ErrorIs(t, err, ErrService)
	require.NotErrorIs(t, err, ErrUnexpectedStatus)

	err = fmt.Errorf("extract: %w", &ServiceError{Status: 501, Body: "nope"})
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	require.NotErrorIs(t, err, ErrService)
	require.Contains(t, err.Error(), "unexpected status")

	var ue UpstreamError
	require.True(t, errors.As(err, &ue))
	require.Equal(t, 501, ue.UpstreamStatus())
	require.Equal(t, "nope", ue.UpstreamMessage())
}

func TestServiceErrorMessageTruncated(t *testing.T) {
	e := &ServiceError{Status: 500, Body: strings.Repeat("x", 2000)}
	require.Len(t, e.UpstreamMessage(), maxUpstreamMsg)
}

func TestIndexAndRows(t *testing.T) {
	ix := Index{}
	require.False(t, ix.Has("a"))
	ix.Add("a", EntityPair{Type: "Person", Name: "Ada"})
	ix.Add("a", EntityPair{Type: "Organization", Name: "Acme"})
	require.True(t, ix.Has("a"))
	require.Equal(t, "Acme", ix.Entities("a")[1].Name)

	var nilIx Index
	require.False(t, nilIx.Has("a"))

	results := []Result{
		{ID: "a", Entities: ix.Entities("a")},
		{ID: "b", Err: ErrDecode},
		{ID: "c"},
	}
	rows := Rows(results)
	require.Len(t, rows, 2)
	require.Equal(t, RecordID("a"), rows[0].ID)
	require.Equal(t, "Person", rows[0].Type)
	require.True(t, results[2].OK())
	require.False(t, results[1].OK())
}

func TestObserverContext(t *testing.T) {
	// 未挂载：no-op 不 panic
	ObserverFrom(context.Background())(Attempt{N: 1})

	var got []int
	ctx := WithObserver(context.Background(), func(a Attempt) { got = append(got, a.Status) })
	ObserverFrom(ctx)(Attempt{N: 1, Status: 429})
	ObserverFrom(ctx)(Attempt{N: 2, Status: 200})
	require.Equal(t, []int{429, 200}, got)

	require.Equal(t, context.Background(), WithObserver(context.Background(), nil))
}
