package sourcedb

import (
	"context"

	"github.com/gowvp/tams/internal/core/source"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

// DB source.Storer 的 gorm 实现
type DB struct {
	db *gorm.DB
}

func NewDB(db *gorm.DB) DB {
	return DB{db: db}
}

func (d DB) AutoMigrate(ok bool) DB {
	if ok {
		if err := d.db.AutoMigrate(new(source.Source)); err != nil {
			panic(err)
		}
	}
	return d
}

func (d DB) Source() source.SourceStorer { return Source{db: d.db} }

type Source struct {
	db *gorm.DB
}

func scopes(db *gorm.DB, opts []orm.QueryOption) *gorm.DB {
	for _, opt := range opts {
		db = opt(db)
	}
	return db
}

func (s Source) Find(ctx context.Context, out *[]*source.Source, pager orm.Pager, opts ...orm.QueryOption) (int64, error) {
	db := scopes(s.db.WithContext(ctx).Model(new(source.Source)), opts)
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return 0, err
	}
	err := db.Offset(pager.Offset()).Limit(pager.Limit()).Find(out).Error
	return total, err
}

func (s Source) Get(ctx context.Context, out *source.Source, opts ...orm.QueryOption) error {
	return scopes(s.db.WithContext(ctx), opts).First(out).Error
}

func (s Source) Session(ctx context.Context, fns ...func(*gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, fn := range fns {
			if err := fn(tx); err != nil {
				return err
			}
		}
		return nil
	})
}
