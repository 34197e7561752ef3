package sampler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"calaisner/pkg/contract"
)

// corpus 构造 n 条记录，其中位置为 every 的倍数的记录有已知实体。
func corpus(n, every int) ([]contract.Record, contract.Index) {
	recs := make([]contract.Record, n)
	idx := contract.Index{}
	for i := 0; i < n; i++ {
		id := contract.RecordID(fmt.Sprintf("r%03d", i))
		recs[i] = contract.Record{ID: id, Text: string(id) + " - text"}
		if i%every == 0 {
			idx.Add(id, contract.EntityPair{Type: "Person", Name: "p"})
		}
	}
	return recs, idx
}

func TestDrawExactDistinctEligible(t *testing.T) {
	recs, idx := corpus(100, 3)
	s := Seeded(42)
	for _, cnt := range []int{0, 1, 10, Eligible(recs, idx)} {
		pos, err := s.Draw(recs, idx, cnt)
		require.NoError(t, err)
		require.Len(t, pos, cnt)
		seen := map[int]bool{}
		for _, p := range pos {
			require.False(t, seen[p], "位置重复: %d", p)
			seen[p] = true
			require.True(t, idx.Has(recs[p].ID), "位置不合格: %d", p)
		}
	}
}

func TestDrawReproducibleWithSeed(t *testing.T) {
	recs, idx := corpus(50, 2)
	a, err := Seeded(7).Draw(recs, idx, 12)
	require.NoError(t, err)
	b, err := Seeded(7).Draw(recs, idx, 12)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestDrawInfeasibleFailsFast(t *testing.T) {
	recs, idx := corpus(10, 5) // 合格：0,5
	require.Equal(t, 2, Eligible(recs, idx))

	_, err := Seeded(1).Draw(recs, idx, 3)
	require.ErrorIs(t, err, contract.ErrInvalidArgument)
	_, err = Seeded(1).Draw(recs, idx, -1)
	require.ErrorIs(t, err, contract.ErrInvalidArgument)

	// 空语料：仅 0 可行
	pos, err := Seeded(1).Draw(nil, idx, 0)
	require.NoError(t, err)
	require.Empty(t, pos)
	_, err = Seeded(1).Draw(nil, idx, 1)
	require.ErrorIs(t, err, contract.ErrInvalidArgument)
}

func TestDrawNoEligible(t *testing.T) {
	recs, _ := corpus(5, 1)
	_, err := New(nil).Draw(recs, contract.Index{}, 1)
	require.ErrorIs(t, err, contract.ErrInvalidArgument)
}

func TestDrawAllEligibleIsPermutation(t *testing.T) {
	recs, idx := corpus(20, 1)
	pos, err := New(nil).Draw(recs, idx, 20)
	require.NoError(t, err)
	require.ElementsMatch(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19}, pos)
}

func TestPick(t *testing.T) {
	recs, _ := corpus(4, 1)
	got := Pick(recs, []int{3, 1})
	require.Equal(t, []contract.RecordID{"r003", "r001"}, []contract.RecordID{got[0].ID, got[1].ID})
}

func BenchmarkDraw(b *testing.B) {
	recs, idx := corpus(10000, 4)
	s := Seeded(1)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Draw(recs, idx, 1000); err != nil {
			b.Fatalf("抽样失败: %v", err)
		}
	}
}
