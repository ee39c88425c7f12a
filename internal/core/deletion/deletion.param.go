package deletion

import (
	"github.com/ixugo/goddd/pkg/web"
)

type FindRequestInput struct {
	web.PagerFilter
	FlowID string `form:"flow_id"`
	Status string `form:"status"`
}

type AddRequestInput struct {
	FlowID    string `json:"flow_id" binding:"required"`
	Timerange string `json:"timerange"`
}

type CancelRequestInput struct {
	Reason string `json:"reason"`
}
