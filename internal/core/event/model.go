package event

import (
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/datatypes"
)

// 目录变更事件类型，与订阅方约定的稳定字符串
const (
	TypeSourceCreated   = "source.created"
	TypeSourceUpdated   = "source.updated"
	TypeSourceDeleted   = "source.deleted"
	TypeFlowCreated     = "flow.created"
	TypeFlowUpdated     = "flow.updated"
	TypeFlowDeleted     = "flow.deleted"
	TypeSegmentsAdded   = "segments.added"
	TypeSegmentsDeleted = "segments.deleted"

	// EventWildcard 订阅全部事件
	EventWildcard = "*"
)

// 投递状态
const (
	DeliveryPending   = "pending"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// Event 待通知事件记录，与触发它的目录变更在同一事务内落库，
// 保证提交后崩溃不会丢事件（下游因此是 at-least-once）
type Event struct {
	ID           int64          `gorm:"primaryKey" json:"id"`
	Type         string         `gorm:"column:type;index;size:64" json:"type"`
	Payload      datatypes.JSON `gorm:"column:payload" json:"payload"`
	CreatedAt    orm.Time       `gorm:"column:created_at" json:"created_at"`
	DispatchedAt *orm.Time      `gorm:"column:dispatched_at;index" json:"dispatched_at,omitempty"`
}

// TableName .
func (*Event) TableName() string { return "events" }

// Webhook 订阅端点配置，url 即身份
type Webhook struct {
	ID          int64                        `gorm:"primaryKey" json:"-"`
	URL         string                       `gorm:"column:url;uniqueIndex;size:255" json:"url"`
	APIKeyName  string                       `gorm:"column:api_key_name;size:64" json:"api_key_name,omitempty"`
	APIKeyValue string                       `gorm:"column:api_key_value;size:255" json:"-"`
	Events      datatypes.JSONSlice[string]  `gorm:"column:events" json:"events"`
	CreatedAt   orm.Time                     `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   orm.Time                     `gorm:"column:updated_at" json:"updated_at"`
}

// TableName .
func (*Webhook) TableName() string { return "webhooks" }

// Subscribes 判断订阅集合是否覆盖事件类型，"*" 通配
func (w *Webhook) Subscribes(eventType string) bool {
	for _, e := range w.Events {
		if e == eventType || e == EventWildcard {
			return true
		}
	}
	return false
}

// Delivery (event, webhook) 维度的持久投递记录。
// pending 行在重启后重新入队，实现 at-least-once
type Delivery struct {
	ID        int64    `gorm:"primaryKey" json:"id"`
	EventID   int64    `gorm:"column:event_id;index" json:"event_id"`
	WebhookID int64    `gorm:"column:webhook_id;index" json:"webhook_id"`
	Status    string   `gorm:"column:status;index;size:16" json:"status"`
	Attempts  int      `gorm:"column:attempts" json:"attempts"`
	LastError string   `gorm:"column:last_error;size:512" json:"last_error,omitempty"`
	CreatedAt orm.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt orm.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName .
func (*Delivery) TableName() string { return "webhook_deliveries" }

// Notification 投递到订阅端点的请求体
type Notification struct {
	EventTimestamp orm.Time       `json:"event_timestamp"`
	EventType      string         `json:"event_type"`
	Event          datatypes.JSON `json:"event"`
}
