package router

import (
	"net/http"

	"ai-video-cutter/internal/handler"
	"ai-video-cutter/internal/metrics"

	"github.com/gin-gonic/gin"
)

func SetupRouter(r *gin.Engine, hdl handler.Handler, collector *metrics.Collector) {
	api := r.Group("/api")
	{
		api.POST("/upload", hdl.UploadVideo)
		api.GET("/status/:taskId", hdl.GetStatus)
		api.POST("/chat/:videoId", hdl.Chat)
		api.GET("/chat/:videoId/history", hdl.ChatHistory)
		api.POST("/finalize", hdl.Finalize)
		api.GET("/video/:videoId", hdl.ServeVideo)
		api.HEAD("/video/:videoId", hdl.ServeVideo)
		api.GET("/video/:videoId/state", hdl.VideoState)
		api.GET("/output/:taskId", hdl.DownloadOutput)
		api.HEAD("/output/:taskId", hdl.DownloadOutput)
	}

	r.GET("/metrics", gin.WrapH(collector.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
}
