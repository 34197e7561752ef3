// Package sampler 从语料中抽取互不重复、且在历史结果中有已知实体的记录位置。
package sampler

import (
	"fmt"
	"math/rand/v2"

	"calaisner/pkg/contract"
)

// Sampler: 持有随机源；非并发安全（单次运行单个调用方）。
type Sampler struct {
	r *rand.Rand
}

// New 以给定随机源构造；src 为 nil 时使用随机种子的 PCG。
func New(src rand.Source) *Sampler {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Sampler{r: rand.New(src)}
}

// Seeded 以固定种子构造，便于复现同一抽样。
func Seeded(seed uint64) *Sampler {
	return New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Eligible 统计 recs 中在 idx 有已知实体的记录数。
func Eligible(recs []contract.Record, idx contract.Index) int {
	n := 0
	for _, r := range recs {
		if idx.Has(r.ID) {
			n++
		}
	}
	return n
}

// Draw 返回恰好 cnt 个互不相同的合格位置（按接受顺序）。
// 在 [0,len(recs)) 上均匀抽取：重复位置重抽，不合格位置丢弃。
// cnt 超出合格数量或为负时立即返回 ErrInvalidArgument，不进入抽样循环。
func (s *Sampler) Draw(recs []contract.Record, idx contract.Index, cnt int) ([]int, error) {
	if cnt < 0 {
		return nil, fmt.Errorf("sample count %d: %w", cnt, contract.ErrInvalidArgument)
	}
	eligible := Eligible(recs, idx)
	if cnt > eligible {
		return nil, fmt.Errorf("sample count %d exceeds %d eligible records: %w", cnt, eligible, contract.ErrInvalidArgument)
	}
	out := make([]int, 0, cnt)
	if cnt == 0 {
		return out, nil
	}
	seen := make(map[int]struct{}, cnt*2)
	for len(out) < cnt {
		i := s.r.IntN(len(recs))
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		if !idx.Has(recs[i].ID) {
			continue
		}
		out = append(out, i)
	}
	return out, nil
}

// Pick 按位置取出记录。
func Pick(recs []contract.Record, pos []int) []contract.Record {
	out := make([]contract.Record, 0, len(pos))
	for _, i := range pos {
		out = append(out, recs[i])
	}
	return out
}
