// Package eventstatus は開催日を過ぎたイベントを過去イベントに切り替えるジョブを提供する。
package eventstatus

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// EventMarker は過去イベントの更新を抽象化するインターフェース。
// repository.ContentRepositoryの部分集合として定義する。
type EventMarker interface {
	MarkPastEvents(ctx context.Context, asOf time.Time) (int64, error)
}

// Recorder は更新件数の記録先。
type Recorder interface {
	RecordEventsMarkedPast(count int64)
}

// Job は開催日が今日より前のイベントのis_upcomingをfalseにする。
// 日付はUTCで判定する。
type Job struct {
	events   EventMarker
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewJob は新しいJobを生成する。recorderはnil可。
func NewJob(events EventMarker, recorder Recorder, logger *slog.Logger) *Job {
	return &Job{
		events:   events,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Name はスケジューラのログに出すジョブ名を返す。
func (j *Job) Name() string { return "event_status" }

// Run は過去イベントを更新する。
func (j *Job) Run(ctx context.Context) error {
	y, m, d := j.now().UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	n, err := j.events.MarkPastEvents(ctx, today)
	if err != nil {
		j.logger.Error("過去イベントの更新に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("過去イベントの更新に失敗: %w", err)
	}
	if j.recorder != nil {
		j.recorder.RecordEventsMarkedPast(n)
	}

	j.logger.Info("過去イベントの更新が完了しました",
		slog.Int64("updated_count", n),
		slog.String("as_of", today.Format(time.DateOnly)),
	)
	return nil
}
