package deletion_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/gowvp/tams/internal/core/deletion"
	"github.com/gowvp/tams/internal/core/deletion/store/deletiondb"
	"github.com/gowvp/tams/internal/core/flow"
	"github.com/gowvp/tams/pkg/timerange"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeCatalog 内存片段目录，记录删除调用便于断言批次行为
type fakeCatalog struct {
	mu          sync.Mutex
	flow        flow.Flow
	segments    []*flow.Segment
	deleteCalls int
	flowDeleted bool
	notified    int
}

func newFakeCatalog(flowID string, count int) *fakeCatalog {
	c := fakeCatalog{flow: flow.Flow{ID: flowID, Format: "urn:x-nmos:format:video"}}
	for i := 0; i < count; i++ {
		tr := timerange.Between(
			timerange.Timestamp{Seconds: int64(i * 10)},
			timerange.Timestamp{Seconds: int64(i*10 + 10)},
		)
		c.segments = append(c.segments, &flow.Segment{FlowID: flowID, ObjectID: "obj", Timerange: tr.String()})
	}
	return &c
}

func (f *fakeCatalog) GetFlow(_ context.Context, id string) (*flow.Flow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.flow
	return &out, nil
}

func (f *fakeCatalog) DelFlow(_ context.Context, id string) (*flow.Flow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flowDeleted = true
	f.segments = nil
	out := f.flow
	return &out, nil
}

func (f *fakeCatalog) PeekSegments(_ context.Context, _ string, tr timerange.TimeRange, limit int) ([]*flow.Segment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*flow.Segment, 0, limit)
	for _, seg := range f.segments {
		sr, err := seg.Range()
		if err != nil {
			return nil, err
		}
		if sr.Overlaps(tr) {
			out = append(out, seg)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeCatalog) DeleteSegments(_ context.Context, _ string, tr timerange.TimeRange) (deleted, modified int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	kept := f.segments[:0]
	for _, seg := range f.segments {
		sr, err := seg.Range()
		if err != nil {
			return 0, 0, err
		}
		switch {
		case sr.CoveredBy(tr):
			deleted++
		case sr.Overlaps(tr):
			for _, piece := range sr.Subtract(tr) {
				kept = append(kept, &flow.Segment{FlowID: seg.FlowID, ObjectID: seg.ObjectID, Timerange: piece.String()})
			}
			modified++
		default:
			kept = append(kept, seg)
		}
	}
	f.segments = kept
	return deleted, modified, nil
}

func (f *fakeCatalog) NotifyFlowUpdated(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified++
	return nil
}

func (f *fakeCatalog) segmentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.segments)
}

func newTestCore(t *testing.T, catalog *fakeCatalog, batchSize int) (*deletion.Core, deletiondb.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	store := deletiondb.NewDB(db).AutoMigrate(true)
	return deletion.NewCore(store, catalog, batchSize), store
}

// waitFor 轮询等待请求进入期望状态
func waitFor(t *testing.T, c *deletion.Core, id, status string) *deletion.Request {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		req, err := c.GetRequest(context.Background(), id)
		require.NoError(t, err)
		if req.Status == status {
			return req
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("request %s did not reach status %s", id, status)
	return nil
}

func TestWorkerCompletesRequestInBatches(t *testing.T) {
	catalog := newFakeCatalog("flow-1", 5)
	c, _ := newTestCore(t, catalog, 2)
	defer c.Close()
	go c.StartWorker(10 * time.Millisecond)

	req, err := c.AddRequest(context.Background(), &deletion.AddRequestInput{
		FlowID:    "flow-1",
		Timerange: "[0:0_50:0)",
	})
	require.NoError(t, err)
	assert.False(t, req.DeleteFlow)

	done := waitFor(t, c, req.ID, deletion.StatusCompleted)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, "", done.Remaining)
	assert.Zero(t, catalog.segmentCount())
	assert.False(t, catalog.flowDeleted)

	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	// 每批最多 2 个片段，5 个片段至少 3 个批次
	assert.GreaterOrEqual(t, catalog.deleteCalls, 3)
	assert.Equal(t, 1, catalog.notified)
}

func TestWorkerDeletesFlowForFullRange(t *testing.T) {
	catalog := newFakeCatalog("flow-1", 3)
	c, _ := newTestCore(t, catalog, 100)
	defer c.Close()
	go c.StartWorker(10 * time.Millisecond)

	req, err := c.AddRequest(context.Background(), &deletion.AddRequestInput{FlowID: "flow-1"})
	require.NoError(t, err)
	assert.Equal(t, timerange.Eternity().String(), req.Timerange)
	assert.True(t, req.DeleteFlow)

	waitFor(t, c, req.ID, deletion.StatusCompleted)
	catalog.mu.Lock()
	defer catalog.mu.Unlock()
	assert.True(t, catalog.flowDeleted)
}

// 重启后 processing 请求从持久化的剩余范围继续，之前已清除的区间不再触碰
func TestWorkerResumesFromRemaining(t *testing.T) {
	catalog := newFakeCatalog("flow-1", 5)
	c, store := newTestCore(t, catalog, 100)
	defer c.Close()

	now := orm.Now()
	stale := deletion.Request{
		ID:        uuid.NewString(),
		FlowID:    "flow-1",
		Timerange: "[30:0_50:0)",
		Remaining: "[30:0_50:0)",
		Status:    deletion.StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.Request().Add(context.Background(), &stale))

	go c.StartWorker(10 * time.Millisecond)
	waitFor(t, c, stale.ID, deletion.StatusCompleted)

	// [0:0_30:0) 的三个片段保留
	assert.Equal(t, 3, catalog.segmentCount())
}

func TestWorkerHonorsCancel(t *testing.T) {
	catalog := newFakeCatalog("flow-1", 3)
	c, _ := newTestCore(t, catalog, 100)
	defer c.Close()

	ctx := context.Background()
	req, err := c.AddRequest(ctx, &deletion.AddRequestInput{FlowID: "flow-1", Timerange: "[0:0_30:0)"})
	require.NoError(t, err)

	_, err = c.CancelRequest(ctx, req.ID, &deletion.CancelRequestInput{Reason: "operator abort"})
	require.NoError(t, err)

	go c.StartWorker(10 * time.Millisecond)
	done := waitFor(t, c, req.ID, deletion.StatusError)
	assert.Equal(t, "operator abort", done.Error)
	// 取消生效前未进入删除批次
	assert.Equal(t, 3, catalog.segmentCount())

	// 终态请求拒绝再次取消
	_, err = c.CancelRequest(ctx, req.ID, &deletion.CancelRequestInput{})
	assert.Error(t, err)
}

func TestAddRequestRejectsReadOnlyFlow(t *testing.T) {
	catalog := newFakeCatalog("flow-1", 1)
	catalog.flow.ReadOnly = true
	c, _ := newTestCore(t, catalog, 100)
	defer c.Close()

	_, err := c.AddRequest(context.Background(), &deletion.AddRequestInput{FlowID: "flow-1"})
	assert.Error(t, err)
}
