package flowdb

import (
	"context"

	"github.com/gowvp/tams/internal/core/flow"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

// DB flow.Storer 的 gorm 实现
type DB struct {
	db *gorm.DB
}

func NewDB(db *gorm.DB) DB {
	return DB{db: db}
}

// AutoMigrate 迁移流/片段/媒体对象表结构
func (d DB) AutoMigrate(ok bool) DB {
	if ok {
		if err := d.db.AutoMigrate(
			new(flow.Flow),
			new(flow.Segment),
			new(flow.MediaObject),
		); err != nil {
			panic(err)
		}
	}
	return d
}

func (d DB) Flow() flow.FlowStorer               { return Flow{db: d.db} }
func (d DB) Segment() flow.SegmentStorer         { return Segment{db: d.db} }
func (d DB) MediaObject() flow.MediaObjectStorer { return MediaObject{db: d.db} }

func scopes(db *gorm.DB, opts []orm.QueryOption) *gorm.DB {
	for _, opt := range opts {
		db = opt(db)
	}
	return db
}

type Flow struct {
	db *gorm.DB
}

func (f Flow) Find(ctx context.Context, out *[]*flow.Flow, pager orm.Pager, opts ...orm.QueryOption) (int64, error) {
	db := scopes(f.db.WithContext(ctx).Model(new(flow.Flow)), opts)
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return 0, err
	}
	err := db.Offset(pager.Offset()).Limit(pager.Limit()).Find(out).Error
	return total, err
}

func (f Flow) Get(ctx context.Context, out *flow.Flow, opts ...orm.QueryOption) error {
	return scopes(f.db.WithContext(ctx), opts).First(out).Error
}

func (f Flow) Session(ctx context.Context, fns ...func(*gorm.DB) error) error {
	return f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, fn := range fns {
			if err := fn(tx); err != nil {
				return err
			}
		}
		return nil
	})
}

type Segment struct {
	db *gorm.DB
}

func (s Segment) Find(ctx context.Context, out *[]*flow.Segment, pager orm.Pager, opts ...orm.QueryOption) (int64, error) {
	db := scopes(s.db.WithContext(ctx).Model(new(flow.Segment)), opts)
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return 0, err
	}
	err := db.Offset(pager.Offset()).Limit(pager.Limit()).Find(out).Error
	return total, err
}

func (s Segment) Count(ctx context.Context, opts ...orm.QueryOption) (int64, error) {
	var total int64
	err := scopes(s.db.WithContext(ctx).Model(new(flow.Segment)), opts).Count(&total).Error
	return total, err
}

type MediaObject struct {
	db *gorm.DB
}

func (m MediaObject) Find(ctx context.Context, out *[]*flow.MediaObject, pager orm.Pager, opts ...orm.QueryOption) (int64, error) {
	db := scopes(m.db.WithContext(ctx).Model(new(flow.MediaObject)), opts)
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return 0, err
	}
	err := db.Offset(pager.Offset()).Limit(pager.Limit()).Find(out).Error
	return total, err
}

func (m MediaObject) Get(ctx context.Context, out *flow.MediaObject, opts ...orm.QueryOption) error {
	return scopes(m.db.WithContext(ctx), opts).First(out).Error
}
