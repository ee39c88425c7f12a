package eventdb

import (
	"context"

	"github.com/gowvp/tams/internal/core/event"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

// DB event.Storer 的 gorm 实现
type DB struct {
	db *gorm.DB
}

func NewDB(db *gorm.DB) DB {
	return DB{db: db}
}

// AutoMigrate 迁移事件相关表结构
func (d DB) AutoMigrate(ok bool) DB {
	if ok {
		if err := d.db.AutoMigrate(
			new(event.Event),
			new(event.Webhook),
			new(event.Delivery),
		); err != nil {
			panic(err)
		}
	}
	return d
}

func (d DB) Event() event.EventStorer       { return Event{db: d.db} }
func (d DB) Webhook() event.WebhookStorer   { return Webhook{db: d.db} }
func (d DB) Delivery() event.DeliveryStorer { return Delivery{db: d.db} }

func scopes(db *gorm.DB, opts []orm.QueryOption) *gorm.DB {
	for _, opt := range opts {
		db = opt(db)
	}
	return db
}

// Event 事件表访问
type Event struct {
	db *gorm.DB
}

func (e Event) Find(ctx context.Context, out *[]*event.Event, pager orm.Pager, opts ...orm.QueryOption) (int64, error) {
	db := scopes(e.db.WithContext(ctx).Model(new(event.Event)), opts)
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return 0, err
	}
	err := db.Offset(pager.Offset()).Limit(pager.Limit()).Find(out).Error
	return total, err
}

func (e Event) Get(ctx context.Context, out *event.Event, opts ...orm.QueryOption) error {
	return scopes(e.db.WithContext(ctx), opts).First(out).Error
}

func (e Event) Session(ctx context.Context, fns ...func(*gorm.DB) error) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, fn := range fns {
			if err := fn(tx); err != nil {
				return err
			}
		}
		return nil
	})
}

// Webhook 订阅端点表访问
type Webhook struct {
	db *gorm.DB
}

func (w Webhook) Find(ctx context.Context, out *[]*event.Webhook, pager orm.Pager, opts ...orm.QueryOption) (int64, error) {
	db := scopes(w.db.WithContext(ctx).Model(new(event.Webhook)), opts)
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return 0, err
	}
	err := db.Offset(pager.Offset()).Limit(pager.Limit()).Find(out).Error
	return total, err
}

func (w Webhook) Get(ctx context.Context, out *event.Webhook, opts ...orm.QueryOption) error {
	return scopes(w.db.WithContext(ctx), opts).First(out).Error
}

func (w Webhook) Add(ctx context.Context, in *event.Webhook) error {
	return w.db.WithContext(ctx).Create(in).Error
}

func (w Webhook) Edit(ctx context.Context, out *event.Webhook, fn func(*event.Webhook), opts ...orm.QueryOption) error {
	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := scopes(tx, opts).First(out).Error; err != nil {
			return err
		}
		fn(out)
		return tx.Save(out).Error
	})
}

func (w Webhook) Del(ctx context.Context, out *event.Webhook, opts ...orm.QueryOption) error {
	db := scopes(w.db.WithContext(ctx), opts)
	if err := db.First(out).Error; err != nil {
		return err
	}
	return db.Delete(out).Error
}

// Delivery 投递记录表访问
type Delivery struct {
	db *gorm.DB
}

func (d Delivery) Find(ctx context.Context, out *[]*event.Delivery, pager orm.Pager, opts ...orm.QueryOption) (int64, error) {
	db := scopes(d.db.WithContext(ctx).Model(new(event.Delivery)), opts)
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return 0, err
	}
	err := db.Offset(pager.Offset()).Limit(pager.Limit()).Find(out).Error
	return total, err
}

func (d Delivery) Edit(ctx context.Context, out *event.Delivery, fn func(*event.Delivery), opts ...orm.QueryOption) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := scopes(tx, opts).First(out).Error; err != nil {
			return err
		}
		fn(out)
		return tx.Save(out).Error
	})
}

func (d Delivery) Session(ctx context.Context, fns ...func(*gorm.DB) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, fn := range fns {
			if err := fn(tx); err != nil {
				return err
			}
		}
		return nil
	})
}
