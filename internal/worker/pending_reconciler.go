package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/bus-seat-reservation/internal/pkg/logger"
)

// PendingReleaser は一定時間確定しない保留中の取引を解放する
type PendingReleaser interface {
	ReleaseExpired(ctx context.Context, olderThan time.Duration) (int, error)
}

// LedgerSyncer は永続化に失敗した取引の状態を再送する
type LedgerSyncer interface {
	Resync(ctx context.Context) (int, error)
}

// Lease は運行の所有権を表すロック
// 同じ運行を複数のプロセスが同時に扱わないよう、定期的に延長する
type Lease interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// PendingReconciler は保留中の取引と未同期の取引を定期的に整理するワーカー
type PendingReconciler struct {
	releaser       PendingReleaser
	syncer         LedgerSyncer
	lease          Lease
	leaseTTL       time.Duration
	interval       time.Duration
	pendingTimeout time.Duration
	stopCh         chan struct{}
	doneCh         chan struct{}
}

// NewPendingReconciler は新しいワーカーを作成
func NewPendingReconciler(
	releaser PendingReleaser,
	syncer LedgerSyncer,
	interval time.Duration,
	pendingTimeout time.Duration,
) *PendingReconciler {
	return &PendingReconciler{
		releaser:       releaser,
		syncer:         syncer,
		interval:       interval,
		pendingTimeout: pendingTimeout,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// WithLease は実行のたびに lease を ttl だけ延長するよう設定する
func (r *PendingReconciler) WithLease(lease Lease, ttl time.Duration) *PendingReconciler {
	r.lease = lease
	r.leaseTTL = ttl
	return r
}

// Start はワーカーを開始
func (r *PendingReconciler) Start(ctx context.Context) {
	logger.Info("保留中取引の整理ワーカー開始",
		zap.Duration("interval", r.interval),
		zap.Duration("pending_timeout", r.pendingTimeout),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer close(r.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("保留中取引の整理ワーカー停止（コンテキストキャンセル）")
			return
		case <-r.stopCh:
			logger.Info("保留中取引の整理ワーカー停止（シグナル受信）")
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

// Stop はワーカーを停止
func (r *PendingReconciler) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *PendingReconciler) reconcile(ctx context.Context) {
	log := logger.Get()

	if r.lease != nil {
		if err := r.lease.Extend(ctx, r.leaseTTL); err != nil {
			log.Error("運行の所有権を延長できません", zap.Error(err))
		}
	}

	if r.syncer != nil {
		synced, err := r.syncer.Resync(ctx)
		if err != nil {
			log.Warn("未同期の取引の再送に失敗", zap.Int("synced", synced), zap.Error(err))
		} else if synced > 0 {
			log.Info("未同期の取引を再送", zap.Int("synced", synced))
		}
	}

	released, err := r.releaser.ReleaseExpired(ctx, r.pendingTimeout)
	if err != nil {
		log.Error("保留中取引の解放に失敗", zap.Int("released", released), zap.Error(err))
		return
	}
	if released > 0 {
		log.Info("確定しない保留中取引を解放", zap.Int("count", released))
	} else {
		log.Debug("解放対象の保留中取引なし")
	}
}
