package deletiondb

import (
	"context"

	"github.com/gowvp/tams/internal/core/deletion"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

// DB deletion.Storer 的 gorm 实现
type DB struct {
	db *gorm.DB
}

func NewDB(db *gorm.DB) DB {
	return DB{db: db}
}

func (d DB) AutoMigrate(ok bool) DB {
	if ok {
		if err := d.db.AutoMigrate(new(deletion.Request)); err != nil {
			panic(err)
		}
	}
	return d
}

func (d DB) Request() deletion.RequestStorer { return Request{db: d.db} }

type Request struct {
	db *gorm.DB
}

func scopes(db *gorm.DB, opts []orm.QueryOption) *gorm.DB {
	for _, opt := range opts {
		db = opt(db)
	}
	return db
}

func (r Request) Find(ctx context.Context, out *[]*deletion.Request, pager orm.Pager, opts ...orm.QueryOption) (int64, error) {
	db := scopes(r.db.WithContext(ctx).Model(new(deletion.Request)), opts)
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return 0, err
	}
	err := db.Offset(pager.Offset()).Limit(pager.Limit()).Find(out).Error
	return total, err
}

func (r Request) Get(ctx context.Context, out *deletion.Request, opts ...orm.QueryOption) error {
	return scopes(r.db.WithContext(ctx), opts).First(out).Error
}

func (r Request) Add(ctx context.Context, in *deletion.Request) error {
	return r.db.WithContext(ctx).Create(in).Error
}

func (r Request) Session(ctx context.Context, fns ...func(*gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, fn := range fns {
			if err := fn(tx); err != nil {
				return err
			}
		}
		return nil
	})
}
