package deletion

import (
	"context"

	"github.com/google/uuid"
	"github.com/gowvp/tams/internal/core/flow"
	"github.com/gowvp/tams/pkg/timerange"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/reason"
	"gorm.io/gorm"
)

// RequestStorer Instantiation interface
type RequestStorer interface {
	Find(context.Context, *[]*Request, orm.Pager, ...orm.QueryOption) (int64, error)
	Get(context.Context, *Request, ...orm.QueryOption) error
	Add(context.Context, *Request) error
	Session(context.Context, ...func(*gorm.DB) error) error
}

type Storer interface {
	Request() RequestStorer
}

// Catalog 删除流程依赖的片段目录操作，由 flow 域提供
type Catalog interface {
	GetFlow(ctx context.Context, id string) (*flow.Flow, error)
	DelFlow(ctx context.Context, id string) (*flow.Flow, error)
	PeekSegments(ctx context.Context, flowID string, tr timerange.TimeRange, limit int) ([]*flow.Segment, error)
	DeleteSegments(ctx context.Context, flowID string, tr timerange.TimeRange) (deleted, modified int64, err error)
	NotifyFlowUpdated(ctx context.Context, flowID string) error
}

// Core business domain
type Core struct {
	store   Storer
	catalog Catalog

	batchSize int
	quit      chan struct{}
	wake      chan struct{}
}

// NewCore create business domain
func NewCore(store Storer, catalog Catalog, batchSize int) *Core {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Core{
		store:     store,
		catalog:   catalog,
		batchSize: batchSize,
		quit:      make(chan struct{}),
		wake:      make(chan struct{}, 1),
	}
}

// Close 停止后台删除循环
func (c *Core) Close() {
	close(c.quit)
}

// FindRequests 分页查询删除请求
func (c *Core) FindRequests(ctx context.Context, in *FindRequestInput) ([]*Request, int64, error) {
	query := orm.NewQuery(2).OrderBy("created_at DESC")
	if in.FlowID != "" {
		query.Where("flow_id = ?", in.FlowID)
	}
	if in.Status != "" {
		query.Where("status = ?", in.Status)
	}

	items := make([]*Request, 0, in.Limit())
	total, err := c.store.Request().Find(ctx, &items, in, query.Encode()...)
	if err != nil {
		return nil, 0, reason.ErrDB.Withf(`Find in[%+v] err[%s]`, in, err.Error())
	}
	return items, total, nil
}

// GetRequest Query a single object
func (c *Core) GetRequest(ctx context.Context, id string) (*Request, error) {
	var out Request
	if err := c.store.Request().Get(ctx, &out, orm.Where("id=?", id)); err != nil {
		if orm.IsErrRecordNotFound(err) {
			return nil, reason.ErrNotFound.Withf(`Get id[%s]`, id)
		}
		return nil, reason.ErrDB.Withf(`Get id[%s] err[%s]`, id, err.Error())
	}
	return &out, nil
}

// AddRequest 登记删除请求，实际删除由后台批处理执行。
// 省略 timerange 等同覆盖全时间轴，清空后连流一起删除。
func (c *Core) AddRequest(ctx context.Context, in *AddRequestInput) (*Request, error) {
	f, err := c.catalog.GetFlow(ctx, in.FlowID)
	if err != nil {
		return nil, err
	}
	if f.ReadOnly {
		return nil, reason.ErrBadRequest.Withf("flow [%s] is read-only", in.FlowID)
	}

	tr := timerange.Eternity()
	if in.Timerange != "" {
		if tr, err = timerange.Parse(in.Timerange); err != nil {
			return nil, reason.ErrBadRequest.Withf("timerange [%s]: %s", in.Timerange, err.Error())
		}
	}

	now := orm.Now()
	out := Request{
		ID:         uuid.NewString(),
		FlowID:     in.FlowID,
		Timerange:  tr.String(),
		Remaining:  tr.String(),
		Status:     StatusPending,
		DeleteFlow: tr.Equal(timerange.Eternity()),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.store.Request().Add(ctx, &out); err != nil {
		return nil, reason.ErrDB.Withf(`Add err[%s]`, err.Error())
	}
	c.Wake()
	return &out, nil
}

// CancelRequest 标记取消，批次边界处生效，终态请求拒绝取消
func (c *Core) CancelRequest(ctx context.Context, id string, in *CancelRequestInput) (*Request, error) {
	out, err := c.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if out.Terminal() {
		return nil, reason.ErrBadRequest.Withf("request [%s] already %s", id, out.Status)
	}

	msg := in.Reason
	if msg == "" {
		msg = "cancelled"
	}
	err = c.store.Request().Session(ctx, func(tx *gorm.DB) error {
		return tx.Model(&Request{}).
			Where("id=? AND status IN ?", id, []string{StatusPending, StatusProcessing}).
			Updates(map[string]any{
				"cancel_requested": true,
				"error":            msg,
				"updated_at":       orm.Now(),
			}).Error
	})
	if err != nil {
		return nil, reason.ErrDB.Withf(`Cancel id[%s] err[%s]`, id, err.Error())
	}
	return c.GetRequest(ctx, id)
}

// Wake 有新请求时唤醒后台循环，不阻塞调用方
func (c *Core) Wake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}
