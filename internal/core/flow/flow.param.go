package flow

import (
	"github.com/ixugo/goddd/pkg/web"
)

type FindFlowInput struct {
	web.PagerFilter
	SourceID string `form:"source_id"`
	Format   string `form:"format"`
	Label    string `form:"label"`
}

type AddFlowInput struct {
	ID          string            `json:"id"`
	SourceID    *string           `json:"source_id"`
	Format      string            `json:"format" binding:"required"`
	Label       string            `json:"label"`
	Description string            `json:"description"`
	Tags        map[string]string `json:"tags"`
	ReadOnly    bool              `json:"read_only"`

	MaxBitRate  int64  `json:"max_bit_rate"`
	AvgBitRate  int64  `json:"avg_bit_rate"`
	Container   string `json:"container"`
	Codec       string `json:"codec"`
	FrameWidth  int    `json:"frame_width"`
	FrameHeight int    `json:"frame_height"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`

	FlowCollection []CollectionItem `json:"flow_collection"`
}

type EditFlowInput struct {
	SourceID    *string           `json:"source_id"`
	Label       *string           `json:"label"`
	Description *string           `json:"description"`
	Tags        map[string]string `json:"tags"`
	ReadOnly    *bool             `json:"read_only"`

	MaxBitRate  *int64  `json:"max_bit_rate"`
	AvgBitRate  *int64  `json:"avg_bit_rate"`
	Container   *string `json:"container"`
	Codec       *string `json:"codec"`
	FrameWidth  *int    `json:"frame_width"`
	FrameHeight *int    `json:"frame_height"`
	SampleRate  *int    `json:"sample_rate"`
	Channels    *int    `json:"channels"`

	FlowCollection []CollectionItem `json:"flow_collection"`
}

// SegmentInput 单个片段的登记参数
type SegmentInput struct {
	ObjectID      string            `json:"object_id" binding:"required"`
	Timerange     string            `json:"timerange" binding:"required"`
	TsOffset      string            `json:"ts_offset"`
	SampleOffset  int64             `json:"sample_offset"`
	SampleCount   int64             `json:"sample_count"`
	KeyFrameCount int               `json:"key_frame_count"`
	GetURLs       map[string]string `json:"get_urls"`
}

type AddSegmentsInput struct {
	Segments []SegmentInput `json:"segments" binding:"required"`
	// Replace 为真时先清除重叠区间再写入，否则重叠直接拒绝
	Replace bool `json:"replace"`
}

// FindSegmentInput 片段查询。Page 为上一页最后一个片段的起点时间戳，
// 作为无状态分页游标使用。
type FindSegmentInput struct {
	Timerange string `form:"timerange"`
	Page      string `form:"page"`
	Limit     int    `form:"limit"`
}

// DeleteSegmentsInput 按时间范围删除片段，省略 timerange 等同覆盖全部时间
type DeleteSegmentsInput struct {
	Timerange string `form:"timerange"`
}
