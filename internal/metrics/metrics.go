// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordLoginSuccess(method string)
	RecordLoginFailure(method string)
	RecordRegistration(authSource string)
	RecordSessionsCreated()
	RecordSessionsPurged(count int64)
	RecordTaskOperation(operation string)
	RecordAuthLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginSuccess   *prometheus.CounterVec
	loginFail      *prometheus.CounterVec
	registrations  *prometheus.CounterVec
	sessionsCreated prometheus.Counter
	sessionsPurged prometheus.Counter
	taskOps        *prometheus.CounterVec
	authLatency    prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdeck_login_success_total",
			Help: "ログイン成功の合計数（認証方式別）",
		}, []string{"method"}),
		loginFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdeck_login_fail_total",
			Help: "ログイン失敗の合計数（認証方式別）",
		}, []string{"method"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdeck_registrations_total",
			Help: "新規ユーザー登録の合計数（認証ソース別）",
		}, []string{"auth_source"}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskdeck_sessions_created_total",
			Help: "発行されたセッションの合計数",
		}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskdeck_sessions_purged_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
		taskOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdeck_task_operations_total",
			Help: "タスク操作の合計数（操作種別）",
		}, []string{"operation"}),
		authLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskdeck_auth_latency_seconds",
			Help:    "認証操作のレイテンシ（秒）。bcrypt照合を含む。",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFail,
		c.registrations,
		c.sessionsCreated,
		c.sessionsPurged,
		c.taskOps,
		c.authLatency,
	)

	return c
}

// RecordLoginSuccess はログイン成功を記録する。methodは"local"または"google"。
func (c *Collector) RecordLoginSuccess(method string) {
	c.loginSuccess.WithLabelValues(method).Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
func (c *Collector) RecordLoginFailure(method string) {
	c.loginFail.WithLabelValues(method).Inc()
}

// RecordRegistration は新規ユーザー登録を記録する。
func (c *Collector) RecordRegistration(authSource string) {
	c.registrations.WithLabelValues(authSource).Inc()
}

// RecordSessionsCreated はセッション発行を記録する。
func (c *Collector) RecordSessionsCreated() {
	c.sessionsCreated.Inc()
}

// RecordSessionsPurged はクリーンアップで削除されたセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// RecordTaskOperation はタスク操作を記録する。operationはcreate/update/delete/list/get。
func (c *Collector) RecordTaskOperation(operation string) {
	c.taskOps.WithLabelValues(operation).Inc()
}

// RecordAuthLatency は認証操作のレイテンシを記録する。
func (c *Collector) RecordAuthLatency(duration time.Duration) {
	c.authLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
