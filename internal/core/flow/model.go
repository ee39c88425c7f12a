package flow

import (
	"math"

	"github.com/gowvp/tams/pkg/timerange"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/datatypes"
)

// Flow 媒体流，一条按时间索引的片段序列
type Flow struct {
	ID          string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SourceID    *string           `gorm:"index;type:varchar(36)" json:"source_id,omitempty"`
	Format      string            `gorm:"index;notNull;default:''" json:"format"`
	Label       string            `gorm:"notNull;default:''" json:"label"`
	Description string            `gorm:"notNull;default:''" json:"description"`
	Tags        datatypes.JSONMap `json:"tags"`
	ReadOnly    bool              `gorm:"notNull;default:false" json:"read_only"`

	MaxBitRate  int64  `gorm:"notNull;default:0" json:"max_bit_rate,omitempty"`
	AvgBitRate  int64  `gorm:"notNull;default:0" json:"avg_bit_rate,omitempty"`
	Container   string `gorm:"notNull;default:''" json:"container,omitempty"`
	Codec       string `gorm:"notNull;default:''" json:"codec,omitempty"`
	FrameWidth  int    `gorm:"notNull;default:0" json:"frame_width,omitempty"`
	FrameHeight int    `gorm:"notNull;default:0" json:"frame_height,omitempty"`
	SampleRate  int    `gorm:"notNull;default:0" json:"sample_rate,omitempty"`
	Channels    int    `gorm:"notNull;default:0" json:"channels,omitempty"`

	FlowCollection datatypes.JSONSlice[CollectionItem] `json:"flow_collection,omitempty"`

	// 片段全集的精确并集，随每次片段变更维护
	AvailableTimerange string `gorm:"notNull;default:''" json:"available_timerange,omitempty"`

	CreatedAt orm.Time `json:"created_at"`
	UpdatedAt orm.Time `json:"updated_at"`
}

func (Flow) TableName() string {
	return "flows"
}

// CollectionItem 复合流(multi)对成员流的引用
type CollectionItem struct {
	FlowID       string        `json:"flow_id"`
	Role         string        `json:"role,omitempty"`
	ContainerMap *ContainerMap `json:"container_map,omitempty"`
}

// ContainerMap 成员流在容器内的轨道定位
type ContainerMap struct {
	TrackID   string `json:"track_id,omitempty"`
	ProgramID string `json:"program_id,omitempty"`
	StreamID  string `json:"stream_id,omitempty"`
}

// Segment 片段索引记录。
// timerange 字符串是权威值；start_ns/end_ns 是用于 SQL 粗筛的数值哨兵，
// 无界一侧分别取 math.MinInt64 / math.MaxInt64。
type Segment struct {
	ID       int64  `gorm:"primaryKey" json:"-"`
	FlowID   string `gorm:"index:idx_segments_flow_start,priority:1;type:varchar(36);notNull" json:"flow_id"`
	ObjectID string `gorm:"index;notNull;default:''" json:"object_id"`

	Timerange string `gorm:"notNull;default:''" json:"timerange"`
	StartNs   int64  `gorm:"index:idx_segments_flow_start,priority:2;notNull;default:0" json:"-"`
	StartInc  bool   `gorm:"notNull;default:true" json:"-"`
	EndNs     int64  `gorm:"notNull;default:0" json:"-"`
	EndInc    bool   `gorm:"notNull;default:false" json:"-"`

	TsOffset      string            `gorm:"notNull;default:''" json:"ts_offset,omitempty"`
	SampleOffset  int64             `gorm:"notNull;default:0" json:"sample_offset,omitempty"`
	SampleCount   int64             `gorm:"notNull;default:0" json:"sample_count,omitempty"`
	KeyFrameCount int               `gorm:"notNull;default:0" json:"key_frame_count,omitempty"`
	GetURLs       datatypes.JSONMap `json:"get_urls,omitempty"`

	CreatedAt orm.Time `json:"created_at"`
}

func (Segment) TableName() string {
	return "flow_segments"
}

// Range 解析权威时间范围，行数据由本包写入，解析失败视为内部错误
func (s *Segment) Range() (timerange.TimeRange, error) {
	return timerange.Parse(s.Timerange)
}

// SetRange 同步权威字符串与数值哨兵列
func (s *Segment) SetRange(tr timerange.TimeRange) {
	s.Timerange = tr.String()
	s.StartNs, s.StartInc, s.EndNs, s.EndInc = rangeBounds(tr)
}

// rangeBounds 计算粗筛哨兵，无界一侧取极值
func rangeBounds(tr timerange.TimeRange) (startNs int64, startInc bool, endNs int64, endInc bool) {
	startNs, endNs = math.MinInt64, math.MaxInt64
	startInc, endInc = tr.IncludesStart, tr.IncludesEnd
	if tr.Start != nil {
		startNs = tr.Start.Nanos()
	}
	if tr.End != nil {
		endNs = tr.End.Nanos()
	}
	return
}

// MediaObject 媒体对象登记，flow_references 为仍引用该对象的流集合
type MediaObject struct {
	ObjectID       string                      `gorm:"primaryKey;type:varchar(255)" json:"object_id"`
	SizeBytes      int64                       `gorm:"notNull;default:0" json:"size_bytes,omitempty"`
	MimeType       string                      `gorm:"notNull;default:''" json:"mime_type,omitempty"`
	FlowReferences datatypes.JSONSlice[string] `json:"flow_references"`
	CreatedAt      orm.Time                    `json:"created_at"`
	UpdatedAt      orm.Time                    `json:"updated_at"`
}

func (MediaObject) TableName() string {
	return "media_objects"
}

// References 判断对象是否仍被某个流引用
func (m *MediaObject) References(flowID string) bool {
	for _, id := range m.FlowReferences {
		if id == flowID {
			return true
		}
	}
	return false
}
