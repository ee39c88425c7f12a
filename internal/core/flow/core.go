package flow

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/gowvp/tams/internal/core/source"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/jinzhu/copier"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 目录变更事件类型
const (
	EventCreated         = "flow.created"
	EventUpdated         = "flow.updated"
	EventDeleted         = "flow.deleted"
	EventSegmentsAdded   = "segments.added"
	EventSegmentsDeleted = "segments.deleted"
)

// FlowStorer Instantiation interface
type FlowStorer interface {
	Find(context.Context, *[]*Flow, orm.Pager, ...orm.QueryOption) (int64, error)
	Get(context.Context, *Flow, ...orm.QueryOption) error
	Session(context.Context, ...func(*gorm.DB) error) error
}

// SegmentStorer Instantiation interface
type SegmentStorer interface {
	Find(context.Context, *[]*Segment, orm.Pager, ...orm.QueryOption) (int64, error)
	Count(context.Context, ...orm.QueryOption) (int64, error)
}

// MediaObjectStorer Instantiation interface
type MediaObjectStorer interface {
	Find(context.Context, *[]*MediaObject, orm.Pager, ...orm.QueryOption) (int64, error)
	Get(context.Context, *MediaObject, ...orm.QueryOption) error
}

type Storer interface {
	Flow() FlowStorer
	Segment() SegmentStorer
	MediaObject() MediaObjectStorer
}

// EventBus 目录变更事件的追加与唤醒
type EventBus interface {
	AppendTx(tx *gorm.DB, eventType string, payload any) error
	Wake()
}

// ObjectStore 媒体对象存储边界。
// 目录只登记对象元数据，字节本身归对象存储管
type ObjectStore interface {
	Exists(objectID string) bool
	Stat(objectID string) (size int64, mimeType string, err error)
	Delete(objectID string) error
}

// Core business domain
type Core struct {
	store   Storer
	bus     EventBus
	objects ObjectStore
}

// NewCore create business domain
func NewCore(store Storer, bus EventBus, objects ObjectStore) Core {
	return Core{store: store, bus: bus, objects: objects}
}

// FindFlows 分页查询媒体流，支持源/格式/标签筛选
func (c Core) FindFlows(ctx context.Context, in *FindFlowInput) ([]*Flow, int64, error) {
	query := orm.NewQuery(3).OrderBy("created_at DESC")
	if in.SourceID != "" {
		query.Where("source_id = ?", in.SourceID)
	}
	if in.Format != "" {
		query.Where("format = ?", in.Format)
	}
	if in.Label != "" {
		query.Where("label LIKE ?", "%"+in.Label+"%")
	}

	items := make([]*Flow, 0, in.Limit())
	total, err := c.store.Flow().Find(ctx, &items, in, query.Encode()...)
	if err != nil {
		return nil, 0, reason.ErrDB.Withf(`Find in[%+v] err[%s]`, in, err.Error())
	}
	return items, total, nil
}

// GetFlow Query a single object
func (c Core) GetFlow(ctx context.Context, id string) (*Flow, error) {
	var out Flow
	if err := c.store.Flow().Get(ctx, &out, orm.Where("id=?", id)); err != nil {
		if orm.IsErrRecordNotFound(err) {
			return nil, reason.ErrNotFound.Withf(`Get id[%s]`, id)
		}
		return nil, reason.ErrDB.Withf(`Get id[%s] err[%s]`, id, err.Error())
	}
	return &out, nil
}

// AddFlow Insert into database
func (c Core) AddFlow(ctx context.Context, in *AddFlowInput) (*Flow, error) {
	if !source.IsValidFormat(in.Format) {
		return nil, reason.ErrBadRequest.Withf("unknown format [%s]", in.Format)
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	} else if _, err := uuid.Parse(in.ID); err != nil {
		return nil, reason.ErrBadRequest.Withf("id must be a uuid [%s]", in.ID)
	}
	if in.SourceID != nil {
		if _, err := uuid.Parse(*in.SourceID); err != nil {
			return nil, reason.ErrBadRequest.Withf("source_id must be a uuid [%s]", *in.SourceID)
		}
	}
	if len(in.FlowCollection) > 0 && in.Format != source.FormatMulti {
		return nil, reason.ErrBadRequest.Withf("flow_collection requires format [%s]", source.FormatMulti)
	}

	var out Flow
	if err := copier.Copy(&out, in); err != nil {
		slog.ErrorContext(ctx, "Copy", "err", err)
	}
	now := orm.Now()
	out.Tags = toJSONMap(in.Tags)
	out.FlowCollection = datatypes.NewJSONSlice(in.FlowCollection)
	out.CreatedAt = now
	out.UpdatedAt = now
	err := c.store.Flow().Session(ctx, func(tx *gorm.DB) error {
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

// EditFlow Update object information.
// read_only 本身随时可改，其余字段在只读时拒绝修改。
func (c Core) EditFlow(ctx context.Context, in *EditFlowInput, id string) (*Flow, error) {
	out, err := c.GetFlow(ctx, id)
	if err != nil {
		return nil, err
	}
	if out.ReadOnly && !onlyTogglesReadOnly(in) {
		return nil, reason.ErrBadRequest.Withf("flow [%s] is read-only", id)
	}

	applyFlowEdit(out, in)
	out.UpdatedAt = orm.Now()

	err = c.store.Flow().Session(ctx, func(tx *gorm.DB) error {
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

func onlyTogglesReadOnly(in *EditFlowInput) bool {
	return in.ReadOnly != nil &&
		in.SourceID == nil && in.Label == nil && in.Description == nil &&
		in.Tags == nil && in.MaxBitRate == nil && in.AvgBitRate == nil &&
		in.Container == nil && in.Codec == nil &&
		in.FrameWidth == nil && in.FrameHeight == nil &&
		in.SampleRate == nil && in.Channels == nil &&
		in.FlowCollection == nil
}

func applyFlowEdit(out *Flow, in *EditFlowInput) {
	if in.SourceID != nil {
		out.SourceID = in.SourceID
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
	if in.ReadOnly != nil {
		out.ReadOnly = *in.ReadOnly
	}
	if in.MaxBitRate != nil {
		out.MaxBitRate = *in.MaxBitRate
	}
	if in.AvgBitRate != nil {
		out.AvgBitRate = *in.AvgBitRate
	}
	if in.Container != nil {
		out.Container = *in.Container
	}
	if in.Codec != nil {
		out.Codec = *in.Codec
	}
	if in.FrameWidth != nil {
		out.FrameWidth = *in.FrameWidth
	}
	if in.FrameHeight != nil {
		out.FrameHeight = *in.FrameHeight
	}
	if in.SampleRate != nil {
		out.SampleRate = *in.SampleRate
	}
	if in.Channels != nil {
		out.Channels = *in.Channels
	}
	if in.FlowCollection != nil {
		out.FlowCollection = datatypes.NewJSONSlice(in.FlowCollection)
	}
}

// DelFlow 删除媒体流，级联删除片段索引并解除媒体对象引用，同一事务完成
func (c Core) DelFlow(ctx context.Context, id string) (*Flow, error) {
	out, err := c.GetFlow(ctx, id)
	if err != nil {
		return nil, err
	}
	if out.ReadOnly {
		return nil, reason.ErrBadRequest.Withf("flow [%s] is read-only", id)
	}

	err = c.store.Flow().Session(ctx, func(tx *gorm.DB) error {
		if err := c.derefAllObjects(tx, id); err != nil {
			return err
		}
		if err := tx.Where("flow_id=?", id).Delete(&Segment{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&Flow{}, "id=?", id).Error; err != nil {
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

// GetMediaObject 查询媒体对象登记信息
func (c Core) GetMediaObject(ctx context.Context, objectID string) (*MediaObject, error) {
	var out MediaObject
	if err := c.store.MediaObject().Get(ctx, &out, orm.Where("object_id=?", objectID)); err != nil {
		if orm.IsErrRecordNotFound(err) {
			return nil, reason.ErrNotFound.Withf(`Get object_id[%s]`, objectID)
		}
		return nil, reason.ErrDB.Withf(`Get object_id[%s] err[%s]`, objectID, err.Error())
	}
	return &out, nil
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
