package source

import (
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/datatypes"
)

// 内容格式，NMOS urn 标识
const (
	FormatVideo = "urn:x-nmos:format:video"
	FormatImage = "urn:x-tam:format:image"
	FormatAudio = "urn:x-nmos:format:audio"
	FormatData  = "urn:x-nmos:format:data"
	FormatMulti = "urn:x-nmos:format:multi"
)

// IsValidFormat 校验内容格式取值
func IsValidFormat(f string) bool {
	switch f {
	case FormatVideo, FormatImage, FormatAudio, FormatData, FormatMulti:
		return true
	}
	return false
}

// Source 媒体源，同一内容的多个 Flow 表示归属于一个 Source
type Source struct {
	ID          string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Format      string            `gorm:"index;notNull;default:''" json:"format"`
	Label       string            `gorm:"notNull;default:''" json:"label"`
	Description string            `gorm:"notNull;default:''" json:"description"`
	Tags        datatypes.JSONMap `json:"tags"`
	CreatedAt   orm.Time          `json:"created_at"`
	UpdatedAt   orm.Time          `json:"updated_at"`
}

func (Source) TableName() string {
	return "sources"
}
