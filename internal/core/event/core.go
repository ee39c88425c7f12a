package event

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gowvp/tams/internal/conf"
	"github.com/ixugo/goddd/pkg/conc"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/reason"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Storer data persistence
type Storer interface {
	Event() EventStorer
	Webhook() WebhookStorer
	Delivery() DeliveryStorer
}

// EventStorer Instantiation interface
type EventStorer interface {
	Find(context.Context, *[]*Event, orm.Pager, ...orm.QueryOption) (int64, error)
	Get(context.Context, *Event, ...orm.QueryOption) error
	Session(context.Context, ...func(*gorm.DB) error) error
}

// WebhookStorer Instantiation interface
type WebhookStorer interface {
	Find(context.Context, *[]*Webhook, orm.Pager, ...orm.QueryOption) (int64, error)
	Get(context.Context, *Webhook, ...orm.QueryOption) error
	Add(context.Context, *Webhook) error
	Edit(context.Context, *Webhook, func(*Webhook), ...orm.QueryOption) error
	Del(context.Context, *Webhook, ...orm.QueryOption) error
}

// DeliveryStorer Instantiation interface
type DeliveryStorer interface {
	Find(context.Context, *[]*Delivery, orm.Pager, ...orm.QueryOption) (int64, error)
	Edit(context.Context, *Delivery, func(*Delivery), ...orm.QueryOption) error
	Session(context.Context, ...func(*gorm.DB) error) error
}

// Core business domain
type Core struct {
	store  Storer
	cfg    conf.Notify
	client *http.Client

	lanes conc.Map[int64, *lane]
	wake  chan struct{}
	quit  chan struct{}
}

// NewCore create business domain
func NewCore(store Storer, cfg conf.Notify) *Core {
	return &Core{
		store: store,
		cfg:   cfg,
		client: &http.Client{
			Timeout: cfg.Timeout.Duration(),
		},
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
	}
}

// Close 停止派发循环与全部投递通道
func (c *Core) Close() {
	close(c.quit)
}

// AppendTx 在调用方的变更事务内追加事件记录。
// 与变更同事务提交，提交后崩溃不丢事件。
func (c *Core) AppendTx(tx *gorm.DB, eventType string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	ev := Event{
		Type:      eventType,
		Payload:   b,
		CreatedAt: orm.Now(),
	}
	return tx.Create(&ev).Error
}

// Wake 变更提交后唤醒派发循环，不阻塞调用方
func (c *Core) Wake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// FindWebhooks 列出全部订阅端点，不含密钥值
func (c *Core) FindWebhooks(ctx context.Context) ([]*Webhook, error) {
	items := make([]*Webhook, 0, 8)
	pager := defaultPager{limit: 1000}
	if _, err := c.store.Webhook().Find(ctx, &items, &pager, orm.OrderBy("id ASC")); err != nil {
		return nil, reason.ErrDB.Withf(`Find err[%s]`, err.Error())
	}
	return items, nil
}

// AddWebhook 注册订阅端点，url 已存在时更新订阅集合与密钥
func (c *Core) AddWebhook(ctx context.Context, in *AddWebhookInput) (*Webhook, error) {
	if in.URL == "" {
		return nil, reason.ErrBadRequest.Withf("url is required")
	}
	if len(in.Events) == 0 {
		return nil, reason.ErrBadRequest.Withf("events is required")
	}

	var exist Webhook
	err := c.store.Webhook().Get(ctx, &exist, orm.Where("url=?", in.URL))
	switch {
	case err == nil:
		if err := c.store.Webhook().Edit(ctx, &exist, func(w *Webhook) {
			w.APIKeyName = in.APIKeyName
			w.APIKeyValue = in.APIKeyValue
			w.Events = datatypes.NewJSONSlice(in.Events)
			w.UpdatedAt = orm.Now()
		}, orm.Where("url=?", in.URL)); err != nil {
			return nil, reason.ErrDB.Withf(`Edit url[%s] err[%s]`, in.URL, err.Error())
		}
		return &exist, nil
	case orm.IsErrRecordNotFound(err):
		now := orm.Now()
		out := Webhook{
			URL:         in.URL,
			APIKeyName:  in.APIKeyName,
			APIKeyValue: in.APIKeyValue,
			Events:      datatypes.NewJSONSlice(in.Events),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := c.store.Webhook().Add(ctx, &out); err != nil {
			return nil, reason.ErrDB.Withf(`Add url[%s] err[%s]`, in.URL, err.Error())
		}
		return &out, nil
	default:
		return nil, reason.ErrDB.Withf(`Get url[%s] err[%s]`, in.URL, err.Error())
	}
}

// DelWebhook 注销订阅端点
func (c *Core) DelWebhook(ctx context.Context, url string) (*Webhook, error) {
	var out Webhook
	if err := c.store.Webhook().Get(ctx, &out, orm.Where("url=?", url)); err != nil {
		if orm.IsErrRecordNotFound(err) {
			return nil, reason.ErrNotFound.Withf(`webhook url[%s]`, url)
		}
		return nil, reason.ErrDB.Withf(`Get url[%s] err[%s]`, url, err.Error())
	}
	if err := c.store.Webhook().Del(ctx, &out, orm.Where("url=?", url)); err != nil {
		return nil, reason.ErrDB.Withf(`Del url[%s] err[%s]`, url, err.Error())
	}
	c.lanes.Delete(out.ID)
	return &out, nil
}
