package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"

	"ats-screening-go/internal/api/handler"
	"ats-screening-go/internal/config"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, cfg *config.Config, screeningHandler *handler.ScreeningHandler) {
	// 健康检查不走认证
	h.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	api := h.Group("/api/v1")

	// 配置了API密钥时启用keyauth认证，key映射到hr_id注入上下文
	if len(cfg.Server.APIKeys) > 0 {
		api.Use(keyauth.New(
			keyauth.WithKeyLookUp("header:Authorization", "Bearer"),
			keyauth.WithValidator(func(c context.Context, ctx *app.RequestContext, key string) (bool, error) {
				hrID, ok := cfg.Server.APIKeys[key]
				if !ok {
					return false, nil
				}
				ctx.Set("hr_id", hrID)
				return true, nil
			}),
		))
	}

	api.POST("/screenings", screeningHandler.HandleCreateScreeningRun)
	api.GET("/screenings", screeningHandler.HandleListScreeningRuns)
	api.GET("/screenings/:run_id", screeningHandler.HandleGetScreeningRun)
	api.GET("/screenings/:run_id/archive", screeningHandler.HandleGetRunArchive)
	api.POST("/screenings/:run_id/cancel", screeningHandler.HandleCancelScreeningRun)
	api.POST("/screenings/:run_id/rerun", screeningHandler.HandleRerunScreeningRun)
}
