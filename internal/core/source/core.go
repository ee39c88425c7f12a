package source

import (
	"context"

	"github.com/google/uuid"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/reason"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 目录变更事件类型
const (
	EventCreated = "source.created"
	EventUpdated = "source.updated"
	EventDeleted = "source.deleted"
)

// SourceStorer Instantiation interface
type SourceStorer interface {
	Find(context.Context, *[]*Source, orm.Pager, ...orm.QueryOption) (int64, error)
	Get(context.Context, *Source, ...orm.QueryOption) error
	Session(context.Context, ...func(*gorm.DB) error) error
}

type Storer interface {
	Source() SourceStorer
}

// EventBus 目录变更事件的追加与唤醒
type EventBus interface {
	AppendTx(tx *gorm.DB, eventType string, payload any) error
	Wake()
}

// Core business domain
type Core struct {
	store Storer
	bus   EventBus
}

// NewCore create business domain
func NewCore(store Storer, bus EventBus) Core {
	return Core{store: store, bus: bus}
}

// FindSources 分页查询媒体源，支持格式与标签筛选
func (c Core) FindSources(ctx context.Context, in *FindSourceInput) ([]*Source, int64, error) {
	query := orm.NewQuery(2).OrderBy("created_at DESC")
	if in.Format != "" {
		query.Where("format = ?", in.Format)
	}
	if in.Label != "" {
		query.Where("label LIKE ?", "%"+in.Label+"%")
	}

	items := make([]*Source, 0, in.Limit())
	total, err := c.store.Source().Find(ctx, &items, in, query.Encode()...)
	if err != nil {
		return nil, 0, reason.ErrDB.Withf(`Find in[%+v] err[%s]`, in, err.Error())
	}
	return items, total, nil
}

// GetSource Query a single object
func (c Core) GetSource(ctx context.Context, id string) (*Source, error) {
	var out Source
	if err := c.store.Source().Get(ctx, &out, orm.Where("id=?", id)); err != nil {
		if orm.IsErrRecordNotFound(err) {
			return nil, reason.ErrNotFound.Withf(`Get id[%s]`, id)
		}
		return nil, reason.ErrDB.Withf(`Get id[%s] err[%s]`, id, err.Error())
	}
	return &out, nil
}

// AddSource Insert into database
func (c Core) AddSource(ctx context.Context, in *AddSourceInput) (*Source, error) {
	if !IsValidFormat(in.Format) {
		return nil, reason.ErrBadRequest.Withf("unknown format [%s]", in.Format)
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	} else if _, err := uuid.Parse(in.ID); err != nil {
		return nil, reason.ErrBadRequest.Withf("id must be a uuid [%s]", in.ID)
	}

	now := orm.Now()
	out := Source{
		ID:          in.ID,
		Format:      in.Format,
		Label:       in.Label,
		Description: in.Description,
		Tags:        toJSONMap(in.Tags),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := c.store.Source().Session(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&out).Error; err != nil {
			return err
		}
		return c.bus.AppendTx(tx, EventCreated, &out)
	})
	if err != nil {
		return nil, reason.ErrDB.Withf(`Add err[%s]`, err.Error())
	}
	c.bus.Wake()
	return &out, nil
}

// EditSource Update object information
func (c Core) EditSource(ctx context.Context, in *EditSourceInput, id string) (*Source, error) {
	out, err := c.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Label != nil {
		out.Label = *in.Label
	}
	if in.Description != nil {
		out.Description = *in.Description
	}
	if in.Tags != nil {
		out.Tags = toJSONMap(in.Tags)
	}
	out.UpdatedAt = orm.Now()

	err = c.store.Source().Session(ctx, func(tx *gorm.DB) error {
		if err := tx.Save(out).Error; err != nil {
			return err
		}
		return c.bus.AppendTx(tx, EventUpdated, out)
	})
	if err != nil {
		return nil, reason.ErrDB.Withf(`Edit id[%s] err[%s]`, id, err.Error())
	}
	c.bus.Wake()
	return out, nil
}

// DelSource 删除媒体源。
// 引用它的 Flow 不随之删除，仅在同一事务内解除 source_id 关联。
func (c Core) DelSource(ctx context.Context, id string) (*Source, error) {
	out, err := c.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}

	err = c.store.Source().Session(ctx, func(tx *gorm.DB) error {
		if err := tx.Table("flows").Where("source_id=?", id).
			Update("source_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Delete(&Source{}, "id=?", id).Error; err != nil {
			return err
		}
		return c.bus.AppendTx(tx, EventDeleted, out)
	})
	if err != nil {
		return nil, reason.ErrDB.Withf(`Del id[%s] err[%s]`, id, err.Error())
	}
	c.bus.Wake()
	return out, nil
}

func toJSONMap(tags map[string]string) datatypes.JSONMap {
	if tags == nil {
		return nil
	}
	m := make(datatypes.JSONMap, len(tags))
	for k, v := range tags {
		m[k] = v
	}
	return m
}
