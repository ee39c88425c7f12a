package source_test

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gowvp/tams/internal/core/flow"
	"github.com/gowvp/tams/internal/core/flow/store/flowdb"
	"github.com/gowvp/tams/internal/core/source"
	"github.com/gowvp/tams/internal/core/source/store/sourcedb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// recordBus 记录事务内追加的事件类型
type recordBus struct {
	types []string
	woken int
}

func (b *recordBus) AppendTx(_ *gorm.DB, eventType string, _ any) error {
	b.types = append(b.types, eventType)
	return nil
}

func (b *recordBus) Wake() { b.woken++ }

func newTestCore(t *testing.T) (source.Core, flow.Core, *recordBus) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	bus := recordBus{}
	flowCore := flow.NewCore(flowdb.NewDB(db).AutoMigrate(true), &bus, nil)
	return source.NewCore(sourcedb.NewDB(db).AutoMigrate(true), &bus), flowCore, &bus
}

func TestSourceCRUD(t *testing.T) {
	c, _, bus := newTestCore(t)
	ctx := context.Background()

	_, err := c.AddSource(ctx, &source.AddSourceInput{Format: "urn:x-nmos:format:banana"})
	assert.Error(t, err)

	s, err := c.AddSource(ctx, &source.AddSourceInput{
		Format: source.FormatVideo,
		Label:  "cam-1",
		Tags:   map[string]string{"site": "hall"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	assert.Equal(t, []string{source.EventCreated}, bus.types)
	assert.Equal(t, 1, bus.woken)

	label := "cam-2"
	s, err = c.EditSource(ctx, &source.EditSourceInput{Label: &label}, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "cam-2", s.Label)

	got, err := c.GetSource(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "cam-2", got.Label)
	assert.Equal(t, "hall", got.Tags["site"])

	items, total, err := c.FindSources(ctx, &source.FindSourceInput{Format: source.FormatVideo})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
}

// 删除媒体源时引用它的流置空 source_id，流本身保留
func TestDelSourceDetachesFlows(t *testing.T) {
	c, flowCore, _ := newTestCore(t)
	ctx := context.Background()

	s, err := c.AddSource(ctx, &source.AddSourceInput{Format: source.FormatVideo})
	require.NoError(t, err)

	f, err := flowCore.AddFlow(ctx, &flow.AddFlowInput{
		Format:   source.FormatVideo,
		SourceID: &s.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, f.SourceID)
	require.Equal(t, s.ID, *f.SourceID)

	_, err = c.DelSource(ctx, s.ID)
	require.NoError(t, err)

	_, err = c.GetSource(ctx, s.ID)
	assert.Error(t, err)

	f, err = flowCore.GetFlow(ctx, f.ID)
	require.NoError(t, err)
	assert.Nil(t, f.SourceID)
}
