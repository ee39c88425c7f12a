package deletion

import (
	"github.com/ixugo/goddd/pkg/orm"
)

// 删除请求状态机: pending -> processing -> completed | error，终态不可变
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Request 异步区间删除请求，一条请求驱动一次删除流程
type Request struct {
	ID     string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	FlowID string `gorm:"index;type:varchar(36);notNull" json:"flow_id"`

	// Timerange 目标范围，Remaining 为尚未清除的剩余范围，随批次推进收缩
	Timerange string `gorm:"notNull;default:''" json:"timerange"`
	Remaining string `gorm:"notNull;default:''" json:"remaining,omitempty"`

	Status   string `gorm:"index;notNull;default:'pending'" json:"status"`
	Progress int    `gorm:"notNull;default:0" json:"progress"`
	Error    string `gorm:"notNull;default:''" json:"error,omitempty"`

	// DeleteFlow 目标覆盖全时间轴时，清空后连流一起删除
	DeleteFlow      bool `gorm:"notNull;default:false" json:"delete_flow,omitempty"`
	CancelRequested bool `gorm:"notNull;default:false" json:"cancel_requested,omitempty"`

	CreatedAt orm.Time `json:"created_at"`
	UpdatedAt orm.Time `json:"updated_at"`
}

func (Request) TableName() string {
	return "deletion_requests"
}

// Terminal 终态判定
func (r *Request) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusError
}
