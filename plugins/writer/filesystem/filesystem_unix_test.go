//go:build !windows

package filesystem

import (
	"testing"

	"github.com/stretchr/testify/require"

	"calaisner/pkg/contract"
)

// 有根目录时拒绝绝对路径与逃逸
func TestMapPathInvalidUnix(t *testing.T) {
	w, _ := New(&Options{OutputDir: t.TempDir()})
	for _, id := range []string{"/abs", "..", "."} {
		_, err := w.mapPath(contract.ArtifactID(id))
		require.ErrorIs(t, err, contract.ErrPathInvalid, "id=%s", id)
	}
}

// 无根目录时绝对路径原样使用
func TestMapPathDirectUnix(t *testing.T) {
	w, _ := New(nil)
	got, err := w.mapPath("/tmp/x/../out.csv")
	require.NoError(t, err)
	require.Equal(t, "/tmp/out.csv", got)
}
