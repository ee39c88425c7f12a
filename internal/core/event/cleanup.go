package event

import (
	"context"
	"log/slog"
	"time"

	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

// StartCleanupWorker 启动事件留存清理协程，每天执行一次。
// days 指定已派发事件的保留天数，连同投递记录一起删除。
func (c *Core) StartCleanupWorker(days int) {
	if days <= 0 {
		slog.Info("event cleanup disabled", "days", days)
		return
	}

	slog.Info("event cleanup worker started", "retain_days", days)

	// 启动时先执行一次清理
	c.cleanupExpiredEvents(days)

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-c.quit:
			return
		case <-ticker.C:
			c.cleanupExpiredEvents(days)
		}
	}
}

// cleanupExpiredEvents 分批删除过期的已派发事件及其投递记录。
// 未派发或仍有 pending 投递的事件不动。
func (c *Core) cleanupExpiredEvents(days int) {
	ctx := context.Background()
	cutoff := orm.Time{Time: time.Now().AddDate(0, 0, -days)}

	totalDeleted := 0
	for {
		var events []*Event
		pager := defaultPager{limit: 100}
		_, err := c.store.Event().Find(ctx, &events, &pager,
			orm.Where("dispatched_at IS NOT NULL AND created_at < ?", cutoff),
			orm.OrderBy("id ASC"),
		)
		if err != nil {
			slog.Error("failed to query expired events", "err", err)
			break
		}
		if len(events) == 0 {
			break
		}

		eventIDs := make([]int64, 0, len(events))
		for _, e := range events {
			eventIDs = append(eventIDs, e.ID)
		}

		// 仍在投递中的事件延后清理
		var pending []*Delivery
		pendingPager := defaultPager{limit: len(eventIDs)}
		if _, err := c.store.Delivery().Find(ctx, &pending, &pendingPager,
			orm.Where("event_id IN ? AND status=?", eventIDs, DeliveryPending),
		); err != nil {
			slog.Error("failed to query pending deliveries", "err", err)
			break
		}
		inFlight := make(map[int64]struct{}, len(pending))
		for _, d := range pending {
			inFlight[d.EventID] = struct{}{}
		}
		deletable := eventIDs[:0]
		for _, id := range eventIDs {
			if _, ok := inFlight[id]; !ok {
				deletable = append(deletable, id)
			}
		}
		if len(deletable) == 0 {
			break
		}

		err = c.store.Event().Session(ctx, func(tx *gorm.DB) error {
			if err := tx.Where("event_id IN ?", deletable).Delete(&Delivery{}).Error; err != nil {
				return err
			}
			return tx.Where("id IN ?", deletable).Delete(&Event{}).Error
		})
		if err != nil {
			slog.Warn("failed to batch delete events", "count", len(deletable), "err", err)
			break
		}
		totalDeleted += len(deletable)
	}

	slog.Info("event cleanup completed", "events_deleted", totalDeleted)
}
