package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gowvp/tams/internal/core/flow"
	"github.com/gowvp/tams/internal/mstore"
	"github.com/ixugo/goddd/pkg/web"
)

// ObjectAPI 媒体对象的字节与元数据访问
type ObjectAPI struct {
	objects *mstore.Store
	catalog flow.Core
}

func NewObjectAPI(objects *mstore.Store, catalog flow.Core) ObjectAPI {
	return ObjectAPI{objects: objects, catalog: catalog}
}

func RegisterObject(g gin.IRouter, api ObjectAPI, handler ...gin.HandlerFunc) {
	group := g.Group("/objects", handler...)
	group.GET("/:id", api.getObject)
	group.HEAD("/:id", api.headObject)
	group.PUT("/:id", api.putObject)
	group.GET("/:id/info", web.WrapH(api.getObjectInfo))
}

// getObject 下载对象字节，http.ServeContent 支持 Range 请求
func (a ObjectAPI) getObject(c *gin.Context) {
	objectID := c.Param("id")
	f, err := a.objects.Open(objectID)
	if err != nil {
		if errors.Is(err, mstore.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"msg": "object not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"msg": err.Error()})
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"msg": err.Error()})
		return
	}
	http.ServeContent(c.Writer, c.Request, objectID, fi.ModTime(), f)
}

func (a ObjectAPI) headObject(c *gin.Context) {
	size, mimeType, err := a.objects.Stat(c.Param("id"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	if mimeType != "" {
		c.Header("Content-Type", mimeType)
	}
	c.Header("Content-Length", strconv.FormatInt(size, 10))
	c.Status(http.StatusOK)
}

// putObject 上传对象字节，超出上限拒绝
func (a ObjectAPI) putObject(c *gin.Context) {
	n, err := a.objects.Put(c.Param("id"), c.Request.Body)
	if err != nil {
		switch {
		case errors.Is(err, mstore.ErrTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"msg": err.Error()})
		case errors.Is(err, mstore.ErrBadObjectID):
			c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"msg": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"object_id": c.Param("id"), "size_bytes": n})
}

// getObjectInfo 对象在目录中的登记信息
func (a ObjectAPI) getObjectInfo(c *gin.Context, _ *struct{}) (*flow.MediaObject, error) {
	return a.catalog.GetMediaObject(c.Request.Context(), c.Param("id"))
}
