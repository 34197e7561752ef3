package diag

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultLogFile: 默认日志路径（相对工作目录）。
const DefaultLogFile = "logs/calaisner.log"

// 级别定义
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Logger 为最小结构化日志器：单行 JSON 写入轮转文件；按级别过滤。
type Logger struct {
	corrID string
	level  Level
	sink   io.Writer
	closer io.Closer
	mu     sync.Mutex
}

// NewLogger 以配置的 level 初始化，写入 file（为空用 DefaultLogFile），10 MiB 轮转、保留 5 份。
func NewLogger(corrID, level, file string) *Logger {
	if strings.TrimSpace(file) == "" {
		file = DefaultLogFile
	}
	lj := &lumberjack.Logger{Filename: file, MaxSize: 10, MaxBackups: 5}
	return &Logger{corrID: corrID, level: parseLevel(strings.TrimSpace(level)), sink: lj, closer: lj}
}

// NewLoggerWithSink 写入任意 io.Writer（nil 表示 stderr）。
func NewLoggerWithSink(corrID, level string, w io.Writer) *Logger {
	return &Logger{corrID: corrID, level: parseLevel(strings.TrimSpace(level)), sink: w}
}

// Close 关闭底层文件（若有）。
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closer.Close()
}

func parseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return Debug
	case "warn":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

// Event 为标准事件结构。
type Event struct {
	Level    string            `json:"level"`
	TS       string            `json:"ts"`
	CorrID   string            `json:"corr_id"`
	Comp     string            `json:"comp"`
	Stage    string            `json:"stage"` // start|finish|attempt|retry|error
	Code     string            `json:"code,omitempty"`
	DurMS    int64             `json:"dur_ms,omitempty"`
	Count    int64             `json:"count,omitempty"`
	RecordID string            `json:"record_id,omitempty"`
	Attempt  int               `json:"attempt,omitempty"`
	Msg      string            `json:"msg"`
	KV       map[string]string `json:"kv,omitempty"`
}

func (l *Logger) log(lv Level, ev Event) {
	if l == nil || lv < l.level {
		return
	}
	ev.Level = lv.String()
	ev.TS = NowUTC()
	ev.CorrID = l.corrID
	b, _ := json.Marshal(ev)
	b = append(b, '\n')
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink == nil {
		_, _ = os.Stderr.Write(b)
		return
	}
	if _, err := l.sink.Write(b); err != nil {
		fmt.Fprintf(os.Stderr, "logger sink error: %v\n", err)
		_, _ = os.Stderr.Write(b)
	}
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Msg: msg})
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 record_id 的 start。
func (l *Logger) StartWith(comp, msg, recordID string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", RecordID: recordID, Msg: msg})
	return &Timer{l: l, comp: comp, recordID: recordID, t0: time.Now()}
}

// StartWithKV 记录带 record_id 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, recordID string, kv map[string]string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", RecordID: recordID, Msg: msg, KV: kv})
	return &Timer{l: l, comp: comp, recordID: recordID, t0: time.Now()}
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: since(durSince), Msg: msg})
}

// ErrorWith 支持 record_id。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, recordID string) {
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: since(durSince), Msg: msg, RecordID: recordID})
}

// ErrorWithKV 支持附带键值对（例如 HTTP 状态码、上游错误片段）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, recordID string, kv map[string]string) {
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: since(durSince), Msg: msg, RecordID: recordID, KV: kv})
}

// Retry 记录一次可恢复的失败（warn 级别）。
func (l *Logger) Retry(comp, code, msg, recordID string, attempt int, kv map[string]string) {
	l.log(Warn, Event{Comp: comp, Stage: "retry", Code: code, Msg: msg, RecordID: recordID, Attempt: attempt, KV: kv})
}

// Attempt 记录一次上游尝试的结果；failed 为 true 时为 warn 级别。
func (l *Logger) Attempt(comp, code, msg, recordID string, attempt int, failed bool, kv map[string]string) {
	lv := Info
	if failed {
		lv = Warn
	}
	l.log(lv, Event{Comp: comp, Stage: "attempt", Code: code, Msg: msg, RecordID: recordID, Attempt: attempt, KV: kv})
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(Info, Event{Comp: comp, Stage: "finish", DurMS: time.Since(start).Milliseconds(), Count: count, Msg: msg})
}

// DebugStart 输出调试级别的 start 类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, recordID string, kv map[string]string) {
	l.log(Debug, Event{Comp: comp, Stage: "start", RecordID: recordID, Msg: msg, KV: kv})
}

func since(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return time.Since(*t).Milliseconds()
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l        *Logger
	comp     string
	recordID string
	t0       time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(Info, Event{Comp: t.comp, Stage: "finish", DurMS: time.Since(t.t0).Milliseconds(), Count: count, RecordID: t.recordID, Msg: msg})
}

// Elapsed 返回自 start 以来的耗时。
func (t *Timer) Elapsed() time.Duration {
	if t == nil {
		return 0
	}
	return time.Since(t.t0)
}
