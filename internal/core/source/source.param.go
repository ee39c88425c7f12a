package source

import (
	"github.com/ixugo/goddd/pkg/web"
)

type FindSourceInput struct {
	web.PagerFilter
	Format string `form:"format"`
	Label  string `form:"label"`
}

type AddSourceInput struct {
	ID          string            `json:"id"`
	Format      string            `json:"format" binding:"required"`
	Label       string            `json:"label"`
	Description string            `json:"description"`
	Tags        map[string]string `json:"tags"`
}

type EditSourceInput struct {
	Label       *string           `json:"label"`
	Description *string           `json:"description"`
	Tags        map[string]string `json:"tags"`
}
