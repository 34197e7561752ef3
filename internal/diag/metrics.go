package diag

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// 指标：
// - calaisner_op_total{comp,stage,result}
// - calaisner_error_total{comp,code}
// - calaisner_op_duration_ms{comp,stage}
// - calaisner_retry_total{comp,status}
var (
	opTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calaisner_op_total",
			Help: "Operations by component, stage and result",
		},
		[]string{"comp", "stage", "result"},
	)
	errorTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calaisner_error_total",
			Help: "Errors by component and classification code",
		},
		[]string{"comp", "code"},
	)
	opDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calaisner_op_duration_ms",
			Help:    "Stage duration in milliseconds",
			Buckets: []float64{1, 5, 25, 100, 250, 1000, 2500, 10000, 60000},
		},
		[]string{"comp", "stage"},
	)
	retryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calaisner_retry_total",
			Help: "Failed upstream attempts, retried or final, by HTTP status (0 for transport failures)",
		},
		[]string{"comp", "status"},
	)

	registry = prometheus.NewRegistry()
)

func init() {
	registry.MustRegister(opTotal, errorTotal, opDuration, retryTotal)
}

// Registry 返回进程内指标注册表。
func Registry() *prometheus.Registry { return registry }

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	opTotal.WithLabelValues(comp, stage, result).Inc()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	errorTotal.WithLabelValues(comp, code).Inc()
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	opDuration.WithLabelValues(comp, stage).Observe(float64(durMS))
}

// IncRetry 记录一次失败尝试。
func IncRetry(comp string, status int) {
	retryTotal.WithLabelValues(comp, strconv.Itoa(status)).Inc()
}

// WriteMetrics 以 textfile 格式导出全部指标（供 node_exporter 采集）；path 为空时 no-op。
func WriteMetrics(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, registry)
}
