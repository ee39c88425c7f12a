package deletion

import (
	"context"
	"log/slog"
	"time"

	"github.com/gowvp/tams/internal/core/flow"
	"github.com/gowvp/tams/pkg/timerange"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

// StartWorker 启动删除流程的后台循环。
// 先恢复崩溃前遗留的 processing 请求，再轮询认领 pending 请求。
func (c *Core) StartWorker(interval time.Duration) {
	slog.Info("deletion worker started", "batch_size", c.batchSize, "interval", interval.String())

	c.resume()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.quit:
			return
		case <-c.wake:
		case <-ticker.C:
		}
		c.claimLoop()
	}
}

// resume 重启后接续 processing 状态的请求，从持久化的剩余范围继续。
// 已清除的子范围重查必然为空，重复执行是幂等的。
func (c *Core) resume() {
	ctx := context.Background()
	var stale []*Request
	pager := &defaultPager{limit: 1000}
	if _, err := c.store.Request().Find(ctx, &stale, pager,
		orm.Where("status=?", StatusProcessing),
		orm.OrderBy("created_at ASC"),
	); err != nil {
		slog.Error("resume deletion requests", "err", err)
		return
	}
	for _, req := range stale {
		slog.Info("resuming deletion request", "id", req.ID, "remaining", req.Remaining)
		c.process(ctx, req)
	}
}

// claimLoop 逐个认领 pending 请求，直到没有可认领的为止
func (c *Core) claimLoop() {
	ctx := context.Background()
	for {
		select {
		case <-c.quit:
			return
		default:
		}

		req, ok := c.claimOne(ctx)
		if !ok {
			return
		}
		c.process(ctx, req)
	}
}

// claimOne 乐观认领: 仅当状态仍是 pending 时置为 processing，
// 保证同一请求同时只被一个执行者处理
func (c *Core) claimOne(ctx context.Context) (*Request, bool) {
	var candidates []*Request
	pager := &defaultPager{limit: 1}
	if _, err := c.store.Request().Find(ctx, &candidates, pager,
		orm.Where("status=?", StatusPending),
		orm.OrderBy("created_at ASC"),
	); err != nil {
		slog.Error("find pending deletion requests", "err", err)
		return nil, false
	}
	if len(candidates) == 0 {
		return nil, false
	}

	req := candidates[0]
	claimed := false
	err := c.store.Request().Session(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&Request{}).
			Where("id=? AND status=?", req.ID, StatusPending).
			Updates(map[string]any{
				"status":     StatusProcessing,
				"updated_at": orm.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		claimed = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		slog.Error("claim deletion request", "id", req.ID, "err", err)
		return nil, false
	}
	if !claimed {
		return nil, false
	}
	req.Status = StatusProcessing
	return req, true
}

// process 有界批次推进一条请求直到清空、出错或被取消
func (c *Core) process(ctx context.Context, req *Request) {
	target, err := timerange.Parse(req.Timerange)
	if err != nil {
		c.fail(ctx, req, "bad timerange: "+err.Error())
		return
	}
	remaining := target
	if req.Remaining != "" {
		if remaining, err = timerange.Parse(req.Remaining); err != nil {
			c.fail(ctx, req, "bad remaining range: "+err.Error())
			return
		}
	}

	for {
		select {
		case <-c.quit:
			return
		default:
		}

		// 批次边界检查取消标记
		cur, err := c.GetRequest(ctx, req.ID)
		if err != nil {
			slog.Error("reload deletion request", "id", req.ID, "err", err)
			return
		}
		if cur.CancelRequested {
			c.fail(ctx, req, cur.Error)
			return
		}

		segs, err := c.catalog.PeekSegments(ctx, req.FlowID, remaining, c.batchSize)
		if err != nil {
			c.fail(ctx, req, err.Error())
			return
		}
		if len(segs) == 0 {
			c.complete(ctx, req)
			return
		}

		// 本批次只清除到最后一个片段的终点，控制单事务规模
		batch := batchRange(remaining, segs[len(segs)-1])
		deleted, modified, err := c.catalog.DeleteSegments(ctx, req.FlowID, batch)
		if err != nil {
			c.fail(ctx, req, err.Error())
			return
		}

		remaining = nextRemaining(remaining, batch)
		req.Remaining = remaining.String()
		if err := c.saveProgress(ctx, req, target, remaining); err != nil {
			slog.Error("persist deletion progress", "id", req.ID, "err", err)
			return
		}
		slog.Debug("deletion batch done",
			"id", req.ID, "deleted", deleted, "modified", modified, "remaining", req.Remaining)
	}
}

// batchRange 剩余范围里以本批最后一个片段的终点为界的前缀子范围，
// 不越过剩余范围自身的终点
func batchRange(remaining timerange.TimeRange, last *flow.Segment) timerange.TimeRange {
	lr, err := last.Range()
	if err != nil || lr.End == nil {
		return remaining
	}

	batch := remaining
	switch {
	case remaining.End == nil,
		lr.End.Before(*remaining.End),
		lr.End.Equal(*remaining.End) && remaining.IncludesEnd:
		end := *lr.End
		batch.End = &end
		batch.IncludesEnd = lr.IncludesEnd
	}
	return batch
}

// nextRemaining 批次后的剩余范围。批界覆盖全部剩余时范围不再收缩，
// 由下一轮空查询触发完成
func nextRemaining(remaining, batch timerange.TimeRange) timerange.TimeRange {
	pieces := remaining.Subtract(batch)
	if len(pieces) == 0 {
		return remaining
	}
	return pieces[len(pieces)-1]
}

// saveProgress 持久化剩余范围与进度百分比
func (c *Core) saveProgress(ctx context.Context, req *Request, target, remaining timerange.TimeRange) error {
	req.Progress = progressOf(target, remaining)
	return c.store.Request().Session(ctx, func(tx *gorm.DB) error {
		return tx.Model(&Request{}).Where("id=?", req.ID).Updates(map[string]any{
			"remaining":  req.Remaining,
			"progress":   req.Progress,
			"updated_at": orm.Now(),
		}).Error
	})
}

// progressOf 有界目标按时长折算百分比，无界目标清空前保持 0
func progressOf(target, remaining timerange.TimeRange) int {
	td, ok := target.Duration()
	if !ok {
		return 0
	}
	rd, ok := remaining.Duration()
	if !ok {
		return 0
	}
	total := td.Nanos()
	if total <= 0 {
		return 0
	}
	p := int(100 - rd.Nanos()*100/total)
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return p
}

// complete 置完成终态，必要时连同已清空的流一起删除
func (c *Core) complete(ctx context.Context, req *Request) {
	err := c.store.Request().Session(ctx, func(tx *gorm.DB) error {
		return tx.Model(&Request{}).
			Where("id=? AND status=?", req.ID, StatusProcessing).
			Updates(map[string]any{
				"status":     StatusCompleted,
				"progress":   100,
				"remaining":  "",
				"updated_at": orm.Now(),
			}).Error
	})
	if err != nil {
		slog.Error("complete deletion request", "id", req.ID, "err", err)
		return
	}

	if req.DeleteFlow {
		if _, err := c.catalog.DelFlow(ctx, req.FlowID); err != nil {
			slog.Warn("delete cleared flow", "id", req.ID, "flow_id", req.FlowID, "err", err)
		}
	} else if err := c.catalog.NotifyFlowUpdated(ctx, req.FlowID); err != nil {
		slog.Warn("notify flow updated", "id", req.ID, "flow_id", req.FlowID, "err", err)
	}
	slog.Info("deletion request completed", "id", req.ID, "flow_id", req.FlowID)
}

// fail 置错误终态并记录原因
func (c *Core) fail(ctx context.Context, req *Request, msg string) {
	err := c.store.Request().Session(ctx, func(tx *gorm.DB) error {
		return tx.Model(&Request{}).
			Where("id=? AND status IN ?", req.ID, []string{StatusPending, StatusProcessing}).
			Updates(map[string]any{
				"status":     StatusError,
				"error":      msg,
				"updated_at": orm.Now(),
			}).Error
	})
	if err != nil {
		slog.Error("fail deletion request", "id", req.ID, "err", err)
		return
	}
	slog.Warn("deletion request failed", "id", req.ID, "flow_id", req.FlowID, "reason", msg)
}

// defaultPager 内部使用的分页器，避免传入 nil 导致空指针
type defaultPager struct {
	limit int
}

func (p *defaultPager) Offset() int { return 0 }
func (p *defaultPager) Limit() int  { return p.limit }
