package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sanosuguru/bus-seat-reservation/internal/api"
	"github.com/sanosuguru/bus-seat-reservation/internal/api/handler"
	"github.com/sanosuguru/bus-seat-reservation/internal/api/middleware"
	"github.com/sanosuguru/bus-seat-reservation/internal/pkg/metrics"
)

// Dependencies はルーティングに必要な依存
type Dependencies struct {
	Coordinator  handler.ReservationCoordinatorInterface
	Query        handler.QueryServiceInterface
	HealthChecks map[string]handler.HealthCheck

	// Metrics が nil の場合はHTTPメトリクスを収集しない
	Metrics *metrics.Metrics
	// Gatherer が nil の場合はデフォルトレジストリを公開する
	Gatherer prometheus.Gatherer

	JWTSecret    string
	MetricsToken string
}

// New はミドルウェアとルートを設定したEchoインスタンスを作成する
func New(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler

	middleware.SetupMiddleware(e, deps.Metrics)
	Register(e, deps)
	return e
}

// Register は /api/v1 配下と /metrics のルートを登録する
func Register(e *echo.Echo, deps Dependencies) {
	health := handler.NewHealthHandler(deps.HealthChecks)
	availability := handler.NewAvailabilityHandler(deps.Query)
	reservations := handler.NewReservationHandler(deps.Coordinator, deps.Query)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})), middleware.MetricsAuth(deps.MetricsToken))

	v1 := e.Group("/api/v1")
	v1.GET("/health", health.Check)

	v1.GET("/availability", availability.Get)
	v1.GET("/bus-info", availability.Get)
	v1.GET("/bookings", availability.Bookings)

	r := v1.Group("/reservations", middleware.CallerIdentity(deps.JWTSecret))
	r.POST("", reservations.Create)
	r.GET("", reservations.List)
	r.GET("/:id/manifest", reservations.Manifest)
	r.POST("/:id/release", reservations.Release)
}
