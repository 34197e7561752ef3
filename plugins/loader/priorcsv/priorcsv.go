package priorcsv

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"calaisner/pkg/contract"
)

// DefaultTypes: 默认保留的实体类型。
var DefaultTypes = []string{"Organization", "Person"}

// Options: 最小必要选项。
type Options struct {
	// Types: 允许的实体类型（区分大小写）；为空使用 DefaultTypes。
	Types []string `json:"types"`
	// BufSize: 单行最大字节数；<=0 使用 1 MiB。
	BufSize int `json:"buf_size,omitempty"`
}

type Loader struct {
	allow   map[string]struct{}
	bufSize int
}

// New 创建历史结果加载器。
func New(opts *Options) *Loader {
	var o Options
	if opts != nil {
		o = *opts
	}
	types := o.Types
	if len(types) == 0 {
		types = DefaultTypes
	}
	allow := make(map[string]struct{}, len(types))
	for _, t := range types {
		allow[t] = struct{}{}
	}
	bsz := o.BufSize
	if bsz <= 0 {
		bsz = 1 << 20
	}
	return &Loader{allow: allow, bufSize: bsz}
}

var _ contract.IndexLoader = (*Loader)(nil)

// Load 逐行读取 "id,type,name" 并建立索引。
// 仅按前两个逗号切分，name 可以包含逗号；CRLF 兼容。
// 字段不足三列的行（含空行）返回 ErrLoad 并指明行号；类型不在允许集合的行静默丢弃。
func (l *Loader) Load(ctx context.Context, path string) (contract.Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("prior results %s: %w: %w", path, contract.ErrLoad, err)
	}
	defer f.Close()

	idx := contract.Index{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, min(64*1024, l.bufSize)), l.bufSize)
	line := 0
	for sc.Scan() {
		line++
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		text := strings.TrimSuffix(sc.Text(), "\r")
		parts := strings.SplitN(text, ",", 3)
		if len(parts) < 3 {
			return nil, fmt.Errorf("prior results %s:%d: %w: expected id,type,name", path, line, contract.ErrLoad)
		}
		if _, ok := l.allow[parts[1]]; !ok {
			continue
		}
		idx.Add(contract.RecordID(parts[0]), contract.EntityPair{Type: parts[1], Name: parts[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("prior results %s:%d: %w: %w", path, line+1, contract.ErrLoad, err)
	}
	return idx, nil
}
