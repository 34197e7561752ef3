package priorcsv

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"calaisner/pkg/contract"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "prior.csv")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadAllowListAndOrder(t *testing.T) {
	p := writeFile(t, strings.Join([]string{
		"d1,Person,Ada Lovelace",
		"d1,City,London",
		"d2,Company,Acme",
		"d1,Organization,Royal Society",
		"d3,Organization,Acme, Inc.",
		"",
	}, "\n"))
	idx, err := New(nil).Load(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, contract.Index{
		"d1": {{Type: "Person", Name: "Ada Lovelace"}, {Type: "Organization", Name: "Royal Society"}},
		"d3": {{Type: "Organization", Name: "Acme, Inc."}},
	}, idx)
	// 只有非允许类型的键不存在
	_, ok := idx["d2"]
	require.False(t, ok)
}

func TestLoadCRLFAndEmptyName(t *testing.T) {
	p := writeFile(t, "a,Person,Ada\r\nb,Person,\r\n")
	idx, err := New(nil).Load(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, "Ada", idx.Entities("a")[0].Name)
	require.True(t, idx.Has("b"))
	require.Equal(t, "", idx.Entities("b")[0].Name)
}

func TestLoadCustomTypes(t *testing.T) {
	p := writeFile(t, "a,City,London\nb,Person,Ada\n")
	idx, err := New(&Options{Types: []string{"City"}}).Load(context.Background(), p)
	require.NoError(t, err)
	require.True(t, idx.Has("a"))
	require.False(t, idx.Has("b"))
}

func TestLoadMalformedLine(t *testing.T) {
	tests := []struct {
		name string
		body string
		line string
	}{
		{"两列", "a,Person,Ada\nb,Person\n", ":2:"},
		{"空行在中间", "a,Person,Ada\n\nb,Person,Bob\n", ":2:"},
		{"单列", "justid\n", ":1:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(nil).Load(context.Background(), writeFile(t, tt.body))
			require.ErrorIs(t, err, contract.ErrLoad)
			require.Contains(t, err.Error(), tt.line)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := New(nil).Load(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	require.ErrorIs(t, err, contract.ErrLoad)
}

func TestLoadLineTooLong(t *testing.T) {
	p := writeFile(t, "a,Person,"+strings.Repeat("x", 200)+"\n")
	_, err := New(&Options{BufSize: 64}).Load(context.Background(), p)
	require.ErrorIs(t, err, contract.ErrLoad)
}

func TestLoadEmptyFile(t *testing.T) {
	idx, err := New(nil).Load(context.Background(), writeFile(t, ""))
	require.NoError(t, err)
	require.Empty(t, idx)
}
