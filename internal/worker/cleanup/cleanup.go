// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// セッションは固定12時間で失効するが、失効した行はログアウトされない限り
// テーブルに残り続けるため、定期バッチで物理削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/taskdeck/internal/metrics"
)

// SessionPurger は期限切れセッションの削除を抽象化するインターフェース。
// repository.SessionRepository を受け付けることができる。
type SessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupJob は期限切れセッションの自動削除ジョブ。
// 定期実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	sessions SessionPurger
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
// collectorはnilでもよい（その場合メトリクスは記録しない）。
func NewCleanupJob(sessions SessionPurger, collector metrics.MetricsCollector, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		metrics:  collector,
		logger:   logger,
	}
}

// Run は期限切れセッションを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	purgedCount, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	if j.metrics != nil {
		j.metrics.RecordSessionsPurged(purgedCount)
	}

	duration := time.Since(start)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("purged_count", purgedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
