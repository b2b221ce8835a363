package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sanosuguru/bus-seat-reservation/internal/api/handler"
	"github.com/sanosuguru/bus-seat-reservation/internal/api/router"
	"github.com/sanosuguru/bus-seat-reservation/internal/application"
	"github.com/sanosuguru/bus-seat-reservation/internal/config"
	"github.com/sanosuguru/bus-seat-reservation/internal/domain/reservation"
	"github.com/sanosuguru/bus-seat-reservation/internal/domain/seat"
	"github.com/sanosuguru/bus-seat-reservation/internal/domain/trip"
	"github.com/sanosuguru/bus-seat-reservation/internal/infrastructure/postgres"
	"github.com/sanosuguru/bus-seat-reservation/internal/infrastructure/rabbitmq"
	infraredis "github.com/sanosuguru/bus-seat-reservation/internal/infrastructure/redis"
	"github.com/sanosuguru/bus-seat-reservation/internal/pkg/logger"
	"github.com/sanosuguru/bus-seat-reservation/internal/pkg/metrics"
	"github.com/sanosuguru/bus-seat-reservation/internal/worker"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.Env)
	defer func() { _ = logger.Sync() }()

	m := metrics.Init()
	ctx := context.Background()

	checks := map[string]handler.HealthCheck{}

	// 運行
	tr := trip.NewTrip(cfg.Trip.ID, cfg.Trip.Route, cfg.Trip.DepartureAt, cfg.Trip.TotalSeats)
	if err := tr.Validate(); err != nil {
		logger.Fatal("運行設定が不正です", zap.Error(err))
	}

	// 永続化
	var (
		db        *sqlx.DB
		repo      reservation.Repository
		tripSetup *application.TripSetup
	)
	if cfg.Database.UsePostgres() {
		var err error
		db, err = postgres.NewConnection(&cfg.Database)
		if err != nil {
			logger.Fatal("データベース接続エラー", zap.Error(err))
		}
		if err := postgres.RunMigrations(db.DB, cfg.Database.MigrationsPath); err != nil {
			logger.Fatal("マイグレーションエラー", zap.Error(err))
		}
		seatRepo := postgres.NewSeatRepository(db)
		tripSetup = application.NewTripSetup(postgres.NewTripRepository(db), seatRepo)
		if err := tripSetup.Ensure(ctx, tr); err != nil {
			logger.Fatal("運行の登録に失敗", zap.Error(err))
		}
		repo = postgres.NewLedgerRepository(db, postgres.NewTxManager(db), seatRepo, tr.ID)
		checks["postgres"] = postgres.HealthCheck(db)
	}

	seats, err := seat.NewSeatMap(tr.TotalSeats)
	if err != nil {
		logger.Fatal("座席の初期化に失敗", zap.Error(err))
	}
	ledger := reservation.NewLedger(seats, repo)
	if repo != nil {
		restoreState(ctx, tr.ID, seats, ledger, tripSetup)
	}

	// Redis
	var (
		redisClient *goredis.Client
		cache       application.AvailabilityCache
		lease       *infraredis.DistributedLock
	)
	leaseTTL := 3 * cfg.Worker.ReconcileInterval
	if cfg.Redis.Enabled {
		redisClient = infraredis.NewClient(&cfg.Redis)
		if err := infraredis.Ping(ctx, redisClient); err != nil {
			logger.Fatal("Redis接続エラー", zap.Error(err))
		}
		cache = infraredis.NewAvailabilityCache(redisClient, cfg.Redis.CacheTTL)
		checks["redis"] = infraredis.HealthCheck(redisClient)

		// 同じ運行の座席を複数プロセスが持たないよう、所有権を取る
		lease, err = infraredis.NewLockManager(redisClient, m).
			AcquireLockWithRetry(ctx, fmt.Sprintf("trip:%s:owner", tr.ID), leaseTTL, 5, time.Second)
		if err != nil {
			logger.Fatal("運行の所有権を取得できません", zap.String("trip_id", tr.ID), zap.Error(err))
		}
	}

	// RabbitMQ
	var (
		amqpPublisher *rabbitmq.Publisher
		publisher     application.EventPublisher
	)
	if cfg.AMQP.URL != "" {
		amqpPublisher, err = rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			logger.Fatal("RabbitMQ接続エラー", zap.Error(err))
		}
		publisher = amqpPublisher
	}

	coordinator := application.NewReservationCoordinator(tr.ID, seats, ledger, publisher, m)
	query := application.NewQueryService(tr.ID, seats, ledger, cache)

	// 保留中取引の整理
	reconciler := worker.NewPendingReconciler(coordinator, coordinator, cfg.Worker.ReconcileInterval, cfg.Worker.PendingTimeout)
	if lease != nil {
		reconciler.WithLease(lease, leaseTTL)
	}
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	go reconciler.Start(workerCtx)

	e := router.New(router.Dependencies{
		Coordinator:  coordinator,
		Query:        query,
		HealthChecks: checks,
		Metrics:      m,
		JWTSecret:    cfg.Auth.JWTSecret,
		MetricsToken: cfg.Server.MetricsToken,
	})
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	// Graceful shutdown
	go func() {
		logger.Info("サーバー起動",
			zap.String("port", cfg.Server.Port),
			zap.String("trip_id", tr.ID),
			zap.Int("total_seats", tr.TotalSeats),
			zap.String("store", cfg.Database.Driver),
		)
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("サーバーシャットダウンエラー", zap.Error(err))
	}
	reconciler.Stop()

	if amqpPublisher != nil {
		if err := amqpPublisher.Close(); err != nil {
			logger.Warn("RabbitMQ切断エラー", zap.Error(err))
		}
	}
	if lease != nil {
		if err := lease.Release(shutdownCtx); err != nil {
			logger.Warn("運行の所有権の解放に失敗", zap.Error(err))
		}
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = db.Close()
	}

	logger.Info("サーバーが正常にシャットダウンしました")
}

// restoreState は台帳を永続化先から再生し、確定済みの座席を予約済みに戻す
func restoreState(ctx context.Context, tripID string, seats *seat.SeatMap, ledger *reservation.Ledger, setup *application.TripSetup) {
	booked, err := ledger.Restore(ctx)
	if err != nil {
		logger.Fatal("台帳の復元に失敗", zap.Error(err))
	}
	if err := seats.Restore(booked); err != nil {
		logger.Fatal("座席状態の復元に失敗", zap.Error(err))
	}

	mismatched, err := setup.Verify(ctx, tripID, booked)
	if err != nil {
		logger.Warn("座席テーブルの照合に失敗", zap.Error(err))
	} else if len(mismatched) > 0 {
		logger.Warn("座席テーブルと台帳が食い違っています", zap.Ints("seats", mismatched))
	}
	logger.Info("台帳を復元",
		zap.Int("transactions", ledger.Len()),
		zap.Int("booked_seats", len(booked)),
	)
}
