package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// 予約結果のラベル値
const (
	ResultCommitted    = "committed"
	ResultConflict     = "conflict"
	ResultInvalid      = "invalid"
	ResultStorageFault = "storage_fault"
	ResultAborted      = "aborted"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 予約の総数（result: committed, conflict, invalid, storage_fault, aborted）
	ReservationsTotal *prometheus.CounterVec

	// 座席ロックを保持していた時間（operation: hold, commit, release）
	SeatLockDuration *prometheus.HistogramVec

	// 状態ごとの座席数（state: available, held, booked）
	SeatsByState *prometheus.GaugeVec

	// 解放された保留中取引の数（reason: manual, expired）
	ReleasedTransactionsTotal *prometheus.CounterVec

	// 分散ロックの操作時間（operation: acquire/release, status: success/failed）
	DistributedLockDuration *prometheus.HistogramVec
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		ReservationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_reservations_total",
				Help: "Total number of seat reservation attempts by result",
			},
			[]string{"result"},
		),
		SeatLockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seat_lock_hold_seconds",
				Help:    "Time the per-seat locks were held for one operation",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
			},
			[]string{"operation"},
		),
		SeatsByState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "seats",
				Help: "Current number of seats by state",
			},
			[]string{"state"},
		),
		ReleasedTransactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "released_transactions_total",
				Help: "Total number of pending transactions released",
			},
			[]string{"reason"},
		),
		DistributedLockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distributed_lock_duration_seconds",
				Help:    "Time spent on distributed lock operations",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ReservationsTotal,
		m.SeatLockDuration,
		m.SeatsByState,
		m.ReleasedTransactionsTotal,
		m.DistributedLockDuration,
	)

	return m
}

// SetSeatCounts は状態ごとの座席数を更新する
func (m *Metrics) SetSeatCounts(available, held, booked int) {
	m.SeatsByState.WithLabelValues("available").Set(float64(available))
	m.SeatsByState.WithLabelValues("held").Set(float64(held))
	m.SeatsByState.WithLabelValues("booked").Set(float64(booked))
}

var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
