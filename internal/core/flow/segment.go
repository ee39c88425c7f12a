package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gowvp/tams/pkg/timerange"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/reason"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// errOverlapConflict 与已登记片段的时间范围冲突
var errOverlapConflict = errors.New("segment overlap")

// AddSegments 片段登记。
// 与已有片段重叠时整批拒绝；replace 为真时先对每个新片段的范围执行
// 区间删除再写入。全部变更在一个事务内完成。
func (c Core) AddSegments(ctx context.Context, flowID string, in *AddSegmentsInput) ([]*Segment, error) {
	f, err := c.GetFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if f.ReadOnly {
		return nil, reason.ErrBadRequest.Withf("flow [%s] is read-only", flowID)
	}
	if len(in.Segments) == 0 {
		return nil, reason.ErrBadRequest.Withf("segments is empty")
	}

	now := orm.Now()
	rows := make([]*Segment, 0, len(in.Segments))
	ranges := make([]timerange.TimeRange, 0, len(in.Segments))
	for _, si := range in.Segments {
		tr, err := timerange.Parse(si.Timerange)
		if err != nil {
			return nil, reason.ErrBadRequest.Withf("timerange [%s]: %s", si.Timerange, err.Error())
		}
		if si.TsOffset != "" {
			if _, err := timerange.ParseTimestamp(si.TsOffset); err != nil {
				return nil, reason.ErrBadRequest.Withf("ts_offset [%s]: %s", si.TsOffset, err.Error())
			}
		}
		// 同一批次内部也不允许互相重叠
		for _, prev := range ranges {
			if prev.Overlaps(tr) {
				return nil, reason.ErrBadRequest.Withf("segments overlap within request [%s]", si.Timerange)
			}
		}
		ranges = append(ranges, tr)

		row := Segment{
			FlowID:        flowID,
			ObjectID:      si.ObjectID,
			TsOffset:      si.TsOffset,
			SampleOffset:  si.SampleOffset,
			SampleCount:   si.SampleCount,
			KeyFrameCount: si.KeyFrameCount,
			GetURLs:       toJSONMap(si.GetURLs),
			CreatedAt:     now,
		}
		row.SetRange(tr)
		rows = append(rows, &row)
	}

	err = c.store.Flow().Session(ctx, func(tx *gorm.DB) error {
		for _, tr := range ranges {
			if in.Replace {
				if _, _, err := c.deleteRangeTx(tx, flowID, tr); err != nil {
					return err
				}
				continue
			}
			hits, err := overlappingTx(tx, flowID, tr, 1)
			if err != nil {
				return err
			}
			if len(hits) > 0 {
				return fmt.Errorf("%w: [%s] overlaps existing [%s]",
					errOverlapConflict, tr.String(), hits[0].Timerange)
			}
		}

		for _, row := range rows {
			if err := tx.Create(row).Error; err != nil {
				return err
			}
			if err := c.refObjectTx(tx, row.ObjectID, flowID); err != nil {
				return err
			}
		}

		if err := c.recomputeAvailableTx(tx, flowID); err != nil {
			return err
		}
		return c.bus.AppendTx(tx, EventSegmentsAdded, map[string]any{
			"flow_id":  flowID,
			"segments": rows,
		})
	})
	if err != nil {
		if errors.Is(err, errOverlapConflict) {
			return nil, reason.ErrBadRequest.Withf("segment conflict: %s", err.Error())
		}
		return nil, reason.ErrDB.Withf(`AddSegments flow[%s] err[%s]`, flowID, err.Error())
	}
	c.bus.Wake()
	return rows, nil
}

// FindSegments 按时间范围查询片段，起点升序。
// 游标分页: 传入上一页最后一个片段的起点，返回其后的片段。
func (c Core) FindSegments(ctx context.Context, flowID string, in *FindSegmentInput) ([]*Segment, error) {
	if _, err := c.GetFlow(ctx, flowID); err != nil {
		return nil, err
	}

	tr := timerange.Eternity()
	if in.Timerange != "" {
		var err error
		if tr, err = timerange.Parse(in.Timerange); err != nil {
			return nil, reason.ErrBadRequest.Withf("timerange [%s]: %s", in.Timerange, err.Error())
		}
	}

	startNs, _, endNs, _ := rangeBounds(tr)
	query := orm.NewQuery(3).OrderBy("start_ns ASC")
	query.Where("flow_id = ?", flowID)
	// 数值哨兵粗筛，精确判定在内存中完成
	query.Where("start_ns <= ? AND end_ns >= ?", endNs, startNs)
	if in.Page != "" {
		cursor, err := timerange.ParseTimestamp(in.Page)
		if err != nil {
			return nil, reason.ErrBadRequest.Withf("page [%s]: %s", in.Page, err.Error())
		}
		query.Where("start_ns > ?", cursor.Nanos())
	}

	limit := in.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var rows []*Segment
	if _, err := c.store.Segment().Find(ctx, &rows, &defaultPager{limit: limit}, query.Encode()...); err != nil {
		return nil, reason.ErrDB.Withf(`FindSegments flow[%s] err[%s]`, flowID, err.Error())
	}

	out := rows[:0]
	for _, row := range rows {
		sr, err := row.Range()
		if err != nil {
			slog.Error("bad stored timerange", "flow_id", flowID, "timerange", row.Timerange, "err", err)
			continue
		}
		if sr.Overlaps(tr) {
			out = append(out, row)
		}
	}
	return out, nil
}

// PeekSegments 只读取回与范围重叠的前 limit 个片段，供批处理估算子范围
func (c Core) PeekSegments(ctx context.Context, flowID string, tr timerange.TimeRange, limit int) ([]*Segment, error) {
	startNs, _, endNs, _ := rangeBounds(tr)
	query := orm.NewQuery(2).OrderBy("start_ns ASC")
	query.Where("flow_id = ?", flowID)
	query.Where("start_ns <= ? AND end_ns >= ?", endNs, startNs)

	var rows []*Segment
	pager := &defaultPager{limit: limit}
	if _, err := c.store.Segment().Find(ctx, &rows, pager, query.Encode()...); err != nil {
		return nil, reason.ErrDB.Withf(`PeekSegments flow[%s] err[%s]`, flowID, err.Error())
	}

	out := rows[:0]
	for _, row := range rows {
		sr, err := row.Range()
		if err != nil {
			continue
		}
		if sr.Overlaps(tr) {
			out = append(out, row)
		}
	}
	return out, nil
}

// DeleteSegments 区间删除。
// 完全被覆盖的片段删除并解除对象引用，部分重叠的片段用差集余数替换。
func (c Core) DeleteSegments(ctx context.Context, flowID string, tr timerange.TimeRange) (deleted, modified int64, err error) {
	f, err := c.GetFlow(ctx, flowID)
	if err != nil {
		return 0, 0, err
	}
	if f.ReadOnly {
		return 0, 0, reason.ErrBadRequest.Withf("flow [%s] is read-only", flowID)
	}

	err = c.store.Flow().Session(ctx, func(tx *gorm.DB) error {
		deleted, modified, err = c.deleteRangeTx(tx, flowID, tr)
		if err != nil {
			return err
		}
		if err := c.recomputeAvailableTx(tx, flowID); err != nil {
			return err
		}
		if deleted == 0 && modified == 0 {
			return nil
		}
		return c.bus.AppendTx(tx, EventSegmentsDeleted, map[string]any{
			"flow_id":   flowID,
			"timerange": tr.String(),
			"deleted":   deleted,
			"modified":  modified,
		})
	})
	if err != nil {
		return 0, 0, reason.ErrDB.Withf(`DeleteSegments flow[%s] err[%s]`, flowID, err.Error())
	}
	if deleted > 0 || modified > 0 {
		c.bus.Wake()
	}
	return deleted, modified, nil
}

// NotifyFlowUpdated 追加 flow.updated 事件，携带当前流快照
func (c Core) NotifyFlowUpdated(ctx context.Context, flowID string) error {
	f, err := c.GetFlow(ctx, flowID)
	if err != nil {
		return err
	}
	err = c.store.Flow().Session(ctx, func(tx *gorm.DB) error {
		return c.bus.AppendTx(tx, EventUpdated, f)
	})
	if err != nil {
		return reason.ErrDB.Withf(`NotifyFlowUpdated flow[%s] err[%s]`, flowID, err.Error())
	}
	c.bus.Wake()
	return nil
}

// overlappingTx 事务内取与范围重叠的片段，起点升序。limit<=0 不限量
func overlappingTx(tx *gorm.DB, flowID string, tr timerange.TimeRange, limit int) ([]*Segment, error) {
	startNs, _, endNs, _ := rangeBounds(tr)
	db := tx.Where("flow_id=? AND start_ns<=? AND end_ns>=?", flowID, endNs, startNs).
		Order("start_ns ASC")
	if limit > 0 {
		// 粗筛可能多取，精筛后再截断
		db = db.Limit(limit + 8)
	}
	var rows []*Segment
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := rows[:0]
	for _, row := range rows {
		sr, err := row.Range()
		if err != nil {
			return nil, err
		}
		if sr.Overlaps(tr) {
			out = append(out, row)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// deleteRangeTx 区间删除的事务内核心，返回删除与截断的行数
func (c Core) deleteRangeTx(tx *gorm.DB, flowID string, tr timerange.TimeRange) (deleted, modified int64, err error) {
	rows, err := overlappingTx(tx, flowID, tr, 0)
	if err != nil {
		return 0, 0, err
	}

	touched := make(map[string]struct{})
	for _, row := range rows {
		sr, err := row.Range()
		if err != nil {
			return 0, 0, err
		}
		if sr.CoveredBy(tr) {
			if err := tx.Delete(&Segment{}, "id=?", row.ID).Error; err != nil {
				return 0, 0, err
			}
			touched[row.ObjectID] = struct{}{}
			deleted++
			continue
		}

		// 部分重叠: 原行改写为首个余数，第二个余数另起新行
		pieces := sr.Subtract(tr)
		origStart := sr.Start
		origOffset := row.TsOffset
		first := pieces[0]
		row.SetRange(first)
		row.TsOffset = adjustTsOffset(origOffset, origStart, first.Start)
		if err := tx.Save(row).Error; err != nil {
			return 0, 0, err
		}
		modified++

		if len(pieces) == 2 {
			second := *row
			second.ID = 0
			second.SetRange(pieces[1])
			second.TsOffset = adjustTsOffset(origOffset, origStart, pieces[1].Start)
			if err := tx.Create(&second).Error; err != nil {
				return 0, 0, err
			}
			modified++
		}
	}

	for objectID := range touched {
		if err := c.derefObjectTx(tx, objectID, flowID); err != nil {
			return 0, 0, err
		}
	}
	return deleted, modified, nil
}

// adjustTsOffset 片段起点前移 delta 后，相对起点的展示偏移同步减小 delta
func adjustTsOffset(offset string, oldStart, newStart *timerange.Timestamp) string {
	if oldStart == nil || newStart == nil || oldStart.Equal(*newStart) {
		return offset
	}
	base := timerange.Timestamp{}
	if offset != "" {
		var err error
		if base, err = timerange.ParseTimestamp(offset); err != nil {
			return offset
		}
	}
	delta := newStart.Sub(*oldStart)
	return base.Sub(delta).String()
}

// refObjectTx 登记媒体对象并把流加入引用集合，对象存在于存储时刷新元数据
func (c Core) refObjectTx(tx *gorm.DB, objectID, flowID string) error {
	var obj MediaObject
	err := tx.Where("object_id=?", objectID).First(&obj).Error
	now := orm.Now()
	if err != nil {
		if !orm.IsErrRecordNotFound(err) {
			return err
		}
		obj = MediaObject{
			ObjectID:       objectID,
			FlowReferences: datatypes.NewJSONSlice([]string{flowID}),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		c.statObject(&obj)
		return tx.Create(&obj).Error
	}

	if obj.References(flowID) {
		return nil
	}
	obj.FlowReferences = append(obj.FlowReferences, flowID)
	obj.UpdatedAt = now
	c.statObject(&obj)
	return tx.Save(&obj).Error
}

func (c Core) statObject(obj *MediaObject) {
	if c.objects == nil || !c.objects.Exists(obj.ObjectID) {
		return
	}
	size, mimeType, err := c.objects.Stat(obj.ObjectID)
	if err != nil {
		slog.Warn("stat media object", "object_id", obj.ObjectID, "err", err)
		return
	}
	obj.SizeBytes = size
	if mimeType != "" {
		obj.MimeType = mimeType
	}
}

// derefObjectTx 流对该对象已无片段引用时，把流从引用集合移除
func (c Core) derefObjectTx(tx *gorm.DB, objectID, flowID string) error {
	var n int64
	if err := tx.Model(&Segment{}).
		Where("flow_id=? AND object_id=?", flowID, objectID).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var obj MediaObject
	if err := tx.Where("object_id=?", objectID).First(&obj).Error; err != nil {
		if orm.IsErrRecordNotFound(err) {
			return nil
		}
		return err
	}
	refs := obj.FlowReferences[:0]
	for _, id := range obj.FlowReferences {
		if id != flowID {
			refs = append(refs, id)
		}
	}
	obj.FlowReferences = refs
	obj.UpdatedAt = orm.Now()
	return tx.Save(&obj).Error
}

// derefAllObjects 流删除时解除它对全部媒体对象的引用
func (c Core) derefAllObjects(tx *gorm.DB, flowID string) error {
	var objectIDs []string
	if err := tx.Model(&Segment{}).Where("flow_id=?", flowID).
		Distinct("object_id").Pluck("object_id", &objectIDs).Error; err != nil {
		return err
	}
	for _, objectID := range objectIDs {
		var obj MediaObject
		if err := tx.Where("object_id=?", objectID).First(&obj).Error; err != nil {
			if orm.IsErrRecordNotFound(err) {
				continue
			}
			return err
		}
		refs := obj.FlowReferences[:0]
		for _, id := range obj.FlowReferences {
			if id != flowID {
				refs = append(refs, id)
			}
		}
		obj.FlowReferences = refs
		obj.UpdatedAt = orm.Now()
		if err := tx.Save(&obj).Error; err != nil {
			return err
		}
	}
	return nil
}

// recomputeAvailableTx 全量扫描重算可用范围缓存
func (c Core) recomputeAvailableTx(tx *gorm.DB, flowID string) error {
	var trs []string
	if err := tx.Model(&Segment{}).Where("flow_id=?", flowID).
		Order("start_ns ASC").Pluck("timerange", &trs).Error; err != nil {
		return err
	}

	set := make(timerange.Set, 0, len(trs))
	for _, s := range trs {
		r, err := timerange.Parse(s)
		if err != nil {
			return err
		}
		set = append(set, r)
	}

	return tx.Model(&Flow{}).Where("id=?", flowID).Updates(map[string]any{
		"available_timerange": set.Normalize().String(),
		"updated_at":          orm.Now(),
	}).Error
}

// ReleaseOrphans 回收引用集合为空且超过保留期的媒体对象，连同存储字节
func (c Core) ReleaseOrphans(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := orm.Time{Time: time.Now().Add(-grace)}
	query := orm.NewQuery(1).OrderBy("updated_at ASC")
	query.Where("updated_at < ?", cutoff)

	var objs []*MediaObject
	pager := &defaultPager{limit: 1000}
	if _, err := c.store.MediaObject().Find(ctx, &objs, pager, query.Encode()...); err != nil {
		return 0, reason.ErrDB.Withf(`ReleaseOrphans err[%s]`, err.Error())
	}

	released := 0
	for _, obj := range objs {
		if len(obj.FlowReferences) > 0 {
			continue
		}
		err := c.store.Flow().Session(ctx, func(tx *gorm.DB) error {
			return tx.Delete(&MediaObject{}, "object_id=?", obj.ObjectID).Error
		})
		if err != nil {
			return released, reason.ErrDB.Withf(`ReleaseOrphans object[%s] err[%s]`, obj.ObjectID, err.Error())
		}
		if c.objects != nil {
			if err := c.objects.Delete(obj.ObjectID); err != nil {
				slog.Warn("reclaim object bytes", "object_id", obj.ObjectID, "err", err)
			}
		}
		released++
	}
	return released, nil
}

// StartOrphanWorker 周期回收孤儿媒体对象
func (c Core) StartOrphanWorker(grace, interval time.Duration, quit <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			n, err := c.ReleaseOrphans(context.Background(), grace)
			if err != nil {
				slog.Error("release orphan objects", "err", err)
				continue
			}
			if n > 0 {
				slog.Info("orphan objects released", "count", n)
			}
		}
	}
}

// defaultPager 内部使用的分页器，避免传入 nil 导致空指针
type defaultPager struct {
	limit int
}

func (p *defaultPager) Offset() int { return 0 }
func (p *defaultPager) Limit() int  { return p.limit }
