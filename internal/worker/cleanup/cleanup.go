// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// セッションは外部の認証基盤が発行するため、本サービスは期限切れの行を定期的に掃除するだけを担う。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionDeleter は期限切れセッションの削除を抽象化するインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupJob は期限切れセッションの削除ジョブ。
// 冪等で、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	sessions SessionDeleter
	logger   *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(sessions SessionDeleter, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		logger:   logger,
	}
}

// Name はスケジューラのログに出すジョブ名を返す。
func (j *CleanupJob) Name() string { return "session_cleanup" }

// Run は期限切れセッションを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
