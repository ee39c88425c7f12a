package event

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

const dispatchBatch = 100

// deliveryJob 单次投递任务，携带派发时刻的订阅端点快照
type deliveryJob struct {
	event    *Event
	delivery *Delivery
	hook     Webhook
}

// lane 单个订阅端点的串行投递通道。
// 每个 webhook 一条 lane，保证同一端点按事件创建顺序收到通知，
// 不同端点之间并发互不影响。
type lane struct {
	ch chan deliveryJob
}

// StartDispatchWorker 启动事件派发循环。
// 轮询未派发事件，为每个匹配的订阅建立持久投递记录后交给对应 lane。
func (c *Core) StartDispatchWorker() {
	slog.Info("event dispatch worker started",
		"poll_interval", c.cfg.PollInterval.Duration().String(),
		"max_attempts", c.cfg.MaxAttempts,
	)

	// 重启后把遗留的 pending 投递重新入队
	c.requeuePending()

	ticker := time.NewTicker(c.cfg.PollInterval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-c.quit:
			return
		case <-c.wake:
		case <-ticker.C:
		}
		c.drain()
	}
}

// drain 派发全部未处理事件
func (c *Core) drain() {
	ctx := context.Background()
	for {
		var events []*Event
		pager := defaultPager{limit: dispatchBatch}
		_, err := c.store.Event().Find(ctx, &events, &pager,
			orm.Where("dispatched_at IS NULL"),
			orm.OrderBy("id ASC"),
		)
		if err != nil {
			slog.Error("find undispatched events", "err", err)
			return
		}
		if len(events) == 0 {
			return
		}

		hooks, err := c.FindWebhooks(ctx)
		if err != nil {
			slog.Error("load webhooks", "err", err)
			return
		}

		for _, ev := range events {
			if err := c.dispatch(ctx, ev, hooks); err != nil {
				slog.Error("dispatch event", "event_id", ev.ID, "type", ev.Type, "err", err)
				return
			}
		}
		if len(events) < dispatchBatch {
			return
		}
	}
}

// dispatch 在一个事务内为事件建立投递记录并标记已派发，再交给各 lane
func (c *Core) dispatch(ctx context.Context, ev *Event, hooks []*Webhook) error {
	matched := make([]*Webhook, 0, len(hooks))
	for _, h := range hooks {
		if h.Subscribes(ev.Type) {
			matched = append(matched, h)
		}
	}

	deliveries := make([]*Delivery, 0, len(matched))
	err := c.store.Event().Session(ctx, func(tx *gorm.DB) error {
		now := orm.Now()
		for _, h := range matched {
			d := Delivery{
				EventID:   ev.ID,
				WebhookID: h.ID,
				Status:    DeliveryPending,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.Create(&d).Error; err != nil {
				return err
			}
			deliveries = append(deliveries, &d)
		}
		return tx.Model(&Event{}).Where("id=?", ev.ID).
			Update("dispatched_at", now).Error
	})
	if err != nil {
		return err
	}

	for i, h := range matched {
		c.enqueue(h, deliveryJob{event: ev, delivery: deliveries[i], hook: *h})
	}
	return nil
}

// requeuePending 把崩溃前未完成的投递按事件顺序重新入队
func (c *Core) requeuePending() {
	ctx := context.Background()
	var pending []*Delivery
	pager := defaultPager{limit: 10000}
	if _, err := c.store.Delivery().Find(ctx, &pending, &pager,
		orm.Where("status=?", DeliveryPending),
		orm.OrderBy("event_id ASC"),
	); err != nil {
		slog.Error("requeue pending deliveries", "err", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	hooks, err := c.FindWebhooks(ctx)
	if err != nil {
		slog.Error("requeue pending deliveries", "err", err)
		return
	}
	hookByID := make(map[int64]*Webhook, len(hooks))
	for _, h := range hooks {
		hookByID[h.ID] = h
	}

	requeued := 0
	for _, d := range pending {
		hook, ok := hookByID[d.WebhookID]
		if !ok {
			// 订阅端点已注销，投递作废
			c.markDelivery(ctx, d, DeliveryFailed, "webhook removed")
			continue
		}
		var ev Event
		if err := c.store.Event().Get(ctx, &ev, orm.Where("id=?", d.EventID)); err != nil {
			slog.Warn("requeue: event missing", "event_id", d.EventID, "err", err)
			continue
		}
		c.enqueue(hook, deliveryJob{event: &ev, delivery: d, hook: *hook})
		requeued++
	}
	slog.Info("pending deliveries requeued", "count", requeued)
}

// enqueue 投递到端点对应的 lane，lane 不存在时创建并启动
func (c *Core) enqueue(hook *Webhook, job deliveryJob) {
	l, ok := c.lanes.Load(hook.ID)
	if !ok {
		l = &lane{ch: make(chan deliveryJob, 256)}
		if actual, loaded := c.lanes.LoadOrStore(hook.ID, l); loaded {
			l = actual
		} else {
			go c.runLane(l)
		}
	}
	select {
	case l.ch <- job:
	case <-c.quit:
	}
}

func (c *Core) runLane(l *lane) {
	for {
		select {
		case <-c.quit:
			return
		case job := <-l.ch:
			c.deliver(job)
		}
	}
}

// deliver 按指数退避重试投递，直到成功或尝试次数耗尽。
// 耗尽仅记录失败，绝不影响触发事件的变更，也不阻塞其他端点。
func (c *Core) deliver(job deliveryJob) {
	ctx := context.Background()
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.cfg.RetryBase.Duration() << (attempt - 2)
			select {
			case <-c.quit:
				return
			case <-time.After(delay):
			}
		}

		job.delivery.Attempts = attempt
		if lastErr = c.post(ctx, job); lastErr == nil {
			c.markDelivery(ctx, job.delivery, DeliveryDelivered, "")
			slog.Debug("webhook delivered",
				"url", job.hook.URL, "event_id", job.event.ID, "attempts", attempt)
			return
		}
		slog.Warn("webhook delivery failed",
			"url", job.hook.URL, "event_id", job.event.ID,
			"attempt", attempt, "err", lastErr)
	}

	c.markDelivery(ctx, job.delivery, DeliveryFailed, lastErr.Error())
	slog.Error("webhook delivery exhausted",
		"url", job.hook.URL, "event_id", job.event.ID, "attempts", c.cfg.MaxAttempts)
}

// post 单次投递尝试，带超时
func (c *Core) post(ctx context.Context, job deliveryJob) error {
	body, err := json.Marshal(Notification{
		EventTimestamp: job.event.CreatedAt,
		EventType:      job.event.Type,
		Event:          job.event.Payload,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout.Duration())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.hook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "tams/1.0")
	if job.hook.APIKeyName != "" {
		req.Header.Set(job.hook.APIKeyName, job.hook.APIKeyValue)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Core) markDelivery(ctx context.Context, d *Delivery, status, lastErr string) {
	if err := c.store.Delivery().Edit(ctx, d, func(b *Delivery) {
		b.Status = status
		b.Attempts = d.Attempts
		b.LastError = lastErr
		b.UpdatedAt = orm.Now()
	}, orm.Where("id=?", d.ID)); err != nil {
		slog.Error("mark delivery", "delivery_id", d.ID, "status", status, "err", err)
	}
}
