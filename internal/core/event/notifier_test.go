package event_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gowvp/tams/internal/conf"
	"github.com/gowvp/tams/internal/core/event"
	"github.com/gowvp/tams/internal/core/event/store/eventdb"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// sink 记录 webhook 收到的通知，failures 控制前 N 次请求返回 500
type sink struct {
	mu       sync.Mutex
	got      []event.Notification
	headers  []http.Header
	failures int
}

func (s *sink) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.failures > 0 {
			s.failures--
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var n event.Notification
		if err := json.Unmarshal(body, &n); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.got = append(s.got, n)
		s.headers = append(s.headers, r.Header.Clone())
		w.WriteHeader(http.StatusOK)
	}
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func newTestCore(t *testing.T) (*event.Core, eventdb.DB, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	store := eventdb.NewDB(db).AutoMigrate(true)
	cfg := conf.Notify{
		PollInterval: conf.Duration(20 * time.Millisecond),
		Timeout:      conf.Duration(2 * time.Second),
		MaxAttempts:  3,
		RetryBase:    conf.Duration(10 * time.Millisecond),
	}
	return event.NewCore(store, cfg), store, db
}

func appendEvent(t *testing.T, c *event.Core, db *gorm.DB, typ string, payload any) {
	t.Helper()
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return c.AppendTx(tx, typ, payload)
	}))
	c.Wake()
}

func waitCount(t *testing.T, s *sink, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s.count() >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("sink received %d notifications, want %d", s.count(), want)
}

func TestDispatchFansOutToMatchingWebhooks(t *testing.T) {
	c, _, db := newTestCore(t)
	defer c.Close()

	var flows, sources sink
	flowSrv := httptest.NewServer(flows.handler())
	defer flowSrv.Close()
	sourceSrv := httptest.NewServer(sources.handler())
	defer sourceSrv.Close()

	ctx := context.Background()
	_, err := c.AddWebhook(ctx, &event.AddWebhookInput{
		URL:         flowSrv.URL,
		APIKeyName:  "X-Api-Key",
		APIKeyValue: "secret",
		Events:      []string{event.TypeFlowCreated, event.TypeFlowUpdated},
	})
	require.NoError(t, err)
	_, err = c.AddWebhook(ctx, &event.AddWebhookInput{
		URL:    sourceSrv.URL,
		Events: []string{event.TypeSourceCreated},
	})
	require.NoError(t, err)

	go c.StartDispatchWorker()

	appendEvent(t, c, db, event.TypeFlowCreated, map[string]string{"id": "f1"})
	appendEvent(t, c, db, event.TypeFlowUpdated, map[string]string{"id": "f1"})
	appendEvent(t, c, db, event.TypeSourceCreated, map[string]string{"id": "s1"})

	waitCount(t, &flows, 2)
	waitCount(t, &sources, 1)

	flows.mu.Lock()
	defer flows.mu.Unlock()
	// 同一 webhook 内按事件产生顺序送达
	assert.Equal(t, event.TypeFlowCreated, flows.got[0].EventType)
	assert.Equal(t, event.TypeFlowUpdated, flows.got[1].EventType)
	assert.Equal(t, "secret", flows.headers[0].Get("X-Api-Key"))

	sources.mu.Lock()
	defer sources.mu.Unlock()
	assert.Equal(t, event.TypeSourceCreated, sources.got[0].EventType)
	assert.Empty(t, sources.headers[0].Get("X-Api-Key"))
}

func TestDispatchWildcardSubscription(t *testing.T) {
	c, _, db := newTestCore(t)
	defer c.Close()

	var all sink
	srv := httptest.NewServer(all.handler())
	defer srv.Close()

	_, err := c.AddWebhook(context.Background(), &event.AddWebhookInput{
		URL:    srv.URL,
		Events: []string{event.EventWildcard},
	})
	require.NoError(t, err)

	go c.StartDispatchWorker()
	appendEvent(t, c, db, event.TypeFlowCreated, map[string]string{"id": "f1"})
	appendEvent(t, c, db, event.TypeSegmentsAdded, map[string]string{"flow_id": "f1"})

	waitCount(t, &all, 2)
}

// 瞬时 5xx 重试后送达，投递记录计入重试次数
func TestDeliveryRetriesTransientFailure(t *testing.T) {
	c, store, db := newTestCore(t)
	defer c.Close()

	s := sink{failures: 1}
	srv := httptest.NewServer(s.handler())
	defer srv.Close()

	hook, err := c.AddWebhook(context.Background(), &event.AddWebhookInput{
		URL:    srv.URL,
		Events: []string{event.TypeFlowCreated},
	})
	require.NoError(t, err)

	go c.StartDispatchWorker()
	appendEvent(t, c, db, event.TypeFlowCreated, map[string]string{"id": "f1"})
	waitCount(t, &s, 1)

	var rows []*event.Delivery
	require.Eventually(t, func() bool {
		rows = rows[:0]
		_, err := store.Delivery().Find(context.Background(), &rows, web.PagerFilter{Page: 1, Size: 10},
			orm.Where("webhook_id=?", hook.ID))
		return err == nil && len(rows) == 1 && rows[0].Status == event.DeliveryDelivered
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, rows[0].Attempts)
}

// 重试耗尽后投递置为 failed，事件本身仍算已派发
func TestDeliveryFailsAfterMaxAttempts(t *testing.T) {
	c, store, db := newTestCore(t)
	defer c.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	hook, err := c.AddWebhook(context.Background(), &event.AddWebhookInput{
		URL:    srv.URL,
		Events: []string{event.TypeFlowCreated},
	})
	require.NoError(t, err)

	go c.StartDispatchWorker()
	appendEvent(t, c, db, event.TypeFlowCreated, map[string]string{"id": "f1"})

	var rows []*event.Delivery
	require.Eventually(t, func() bool {
		rows = rows[:0]
		_, err := store.Delivery().Find(context.Background(), &rows, web.PagerFilter{Page: 1, Size: 10},
			orm.Where("webhook_id=?", hook.ID))
		return err == nil && len(rows) == 1 && rows[0].Status == event.DeliveryFailed
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, rows[0].Attempts)
	assert.NotEmpty(t, rows[0].LastError)

	var events []*event.Event
	_, err = store.Event().Find(context.Background(), &events, web.PagerFilter{Page: 1, Size: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotNil(t, events[0].DispatchedAt)
}

func TestAddWebhookUpsertsByURL(t *testing.T) {
	c, _, _ := newTestCore(t)
	defer c.Close()

	ctx := context.Background()
	first, err := c.AddWebhook(ctx, &event.AddWebhookInput{
		URL:    "http://example.com/hook",
		Events: []string{event.TypeFlowCreated},
	})
	require.NoError(t, err)

	second, err := c.AddWebhook(ctx, &event.AddWebhookInput{
		URL:    "http://example.com/hook",
		Events: []string{event.TypeFlowCreated, event.TypeFlowDeleted},
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, []string(second.Events), 2)

	hooks, err := c.FindWebhooks(ctx)
	require.NoError(t, err)
	assert.Len(t, hooks, 1)

	_, err = c.DelWebhook(ctx, "http://example.com/hook")
	require.NoError(t, err)
	hooks, err = c.FindWebhooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, hooks)
}
