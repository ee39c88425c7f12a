package api

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/ixugo/goddd/pkg/web"
)

var startRuntime = time.Now()

func setupRouter(r *gin.Engine, uc *Usecase) {
	r.Use(
		// 格式化输出到控制台，然后记录到日志
		// 此处不做 recover，底层 http.server 也会 recover，但不会输出方便查看的格式
		gin.CustomRecovery(func(c *gin.Context, err any) {
			slog.ErrorContext(c.Request.Context(), "panic", "err", err, "stack", string(debug.Stack()))
			c.AbortWithStatus(http.StatusInternalServerError)
		}),
		web.Metrics(),
		web.Logger(
			web.IgnoreMethod(http.MethodOptions),
			web.IgnorePrefix("/objects"), // 媒体字节流
		),
	)

	r.Use(cors.New(cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders: []string{
			"Accept", "Content-Length", "Content-Type", "Range", "Accept-Language",
			"Origin", "Authorization", "Referer", "User-Agent",
			"Accept-Encoding", "Cache-Control", "Pragma", "X-Requested-With",
			"X-Real-IP", "X-Request-ID",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
		AllowOriginFunc: func(_ string) bool {
			return true
		},
	}))

	// 媒体字节不压缩，目录 JSON 响应压缩
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/objects"})))

	r.GET("/health", web.WrapH(uc.getHealth))
	r.GET("/service", web.WrapH(uc.getServiceInfo))

	RegisterSource(r, uc.SourceAPI)
	RegisterFlow(r, uc.FlowAPI)
	RegisterDeletion(r, uc.DeletionAPI)
	RegisterWebhook(r, uc.WebhookAPI)
	RegisterObject(r, uc.ObjectAPI)
}

type getHealthOutput struct {
	Version string    `json:"version"`
	StartAt time.Time `json:"start_at"`
}

func (uc *Usecase) getHealth(_ *gin.Context, _ *struct{}) (getHealthOutput, error) {
	return getHealthOutput{
		Version: uc.Conf.BuildVersion,
		StartAt: startRuntime,
	}, nil
}

type serviceInfoOutput struct {
	Name                  string   `json:"name"`
	Description           string   `json:"description"`
	Version               string   `json:"version"`
	MediaStoreType        string   `json:"media_store_type"`
	EventStreamMechanisms []string `json:"event_stream_mechanisms"`
}

// getServiceInfo 服务自述信息
func (uc *Usecase) getServiceInfo(_ *gin.Context, _ *struct{}) (serviceInfoOutput, error) {
	return serviceInfoOutput{
		Name:                  "tams",
		Description:           "Time-addressable media store catalog",
		Version:               uc.Conf.BuildVersion,
		MediaStoreType:        "http_object_store",
		EventStreamMechanisms: []string{"webhooks"},
	}, nil
}
