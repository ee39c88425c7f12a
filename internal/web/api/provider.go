package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"github.com/gowvp/tams/internal/conf"
	"github.com/gowvp/tams/internal/core/deletion"
	"github.com/gowvp/tams/internal/core/deletion/store/deletiondb"
	"github.com/gowvp/tams/internal/core/event"
	"github.com/gowvp/tams/internal/core/event/store/eventdb"
	"github.com/gowvp/tams/internal/core/flow"
	"github.com/gowvp/tams/internal/core/flow/store/flowdb"
	"github.com/gowvp/tams/internal/core/source"
	"github.com/gowvp/tams/internal/core/source/store/sourcedb"
	"github.com/gowvp/tams/internal/mstore"
	"github.com/ixugo/goddd/pkg/orm"
	"gorm.io/gorm"
)

var ProviderSet = wire.NewSet(
	wire.Struct(new(Usecase), "*"),
	NewHTTPHandler,
	NewObjectStore,
	NewEventCore,
	NewSourceStore, NewSourceCore, NewSourceAPI,
	NewFlowStore, NewFlowCore, NewFlowAPI,
	NewDeletionStore, NewDeletionCore, NewDeletionAPI,
	NewWebhookAPI,
	NewObjectAPI,
)

type Usecase struct {
	Conf *conf.Bootstrap
	DB   *gorm.DB

	SourceAPI   SourceAPI
	FlowAPI     FlowAPI
	DeletionAPI DeletionAPI
	WebhookAPI  WebhookAPI
	ObjectAPI   ObjectAPI
}

// NewHTTPHandler 生成Gin框架路由内容
func NewHTTPHandler(uc *Usecase) http.Handler {
	if uc.Conf.Server.HTTP.JwtSecret == "" {
		uc.Conf.Server.HTTP.JwtSecret = orm.GenerateRandomString(32)
	}
	if !uc.Conf.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	g := gin.New()
	setupRouter(g, uc)
	return g
}

// NewObjectStore 文件系统对象存储
func NewObjectStore(cfg *conf.Bootstrap) *mstore.Store {
	s, err := mstore.NewStore(cfg.Store)
	if err != nil {
		panic(err)
	}
	return s
}

// NewEventCore 事件域，随构造启动派发循环
func NewEventCore(db *gorm.DB, cfg *conf.Bootstrap) *event.Core {
	core := event.NewCore(
		eventdb.NewDB(db).AutoMigrate(orm.GetEnabledAutoMigrate()),
		cfg.Notify,
	)
	go core.StartDispatchWorker()
	go core.StartCleanupWorker(cfg.Notify.RetainDays)
	return core
}

func NewSourceStore(db *gorm.DB) source.Storer {
	return sourcedb.NewDB(db).AutoMigrate(orm.GetEnabledAutoMigrate())
}

func NewSourceCore(store source.Storer, bus *event.Core) source.Core {
	return source.NewCore(store, bus)
}

func NewFlowStore(db *gorm.DB) flow.Storer {
	return flowdb.NewDB(db).AutoMigrate(orm.GetEnabledAutoMigrate())
}

// NewFlowCore 目录域，随构造启动孤儿对象回收协程
func NewFlowCore(store flow.Storer, bus *event.Core, objects *mstore.Store, cfg *conf.Bootstrap) flow.Core {
	core := flow.NewCore(store, bus, objects)
	go core.StartOrphanWorker(
		cfg.Store.OrphanGrace.Duration(),
		cfg.Store.OrphanGrace.Duration(),
		nil,
	)
	return core
}

func NewDeletionStore(db *gorm.DB) deletion.Storer {
	return deletiondb.NewDB(db).AutoMigrate(orm.GetEnabledAutoMigrate())
}

// NewDeletionCore 删除域，随构造启动批处理循环
func NewDeletionCore(store deletion.Storer, catalog flow.Core, cfg *conf.Bootstrap) *deletion.Core {
	core := deletion.NewCore(store, catalog, cfg.Deletion.BatchSize)
	go core.StartWorker(cfg.Deletion.Interval.Duration())
	return core
}
