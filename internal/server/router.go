package server

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mathscrap/mathscrap-backend/internal/handlers"
	"github.com/mathscrap/mathscrap-backend/internal/logger"
	"github.com/mathscrap/mathscrap-backend/internal/utils"
)

type Router struct {
	engine *gin.Engine
}

func NewRouter(
	log *logger.Logger,
	upload *handlers.UploadHandler,
	status *handlers.StatusHandler,
	health *handlers.HealthHandler,
) *Router {
	mode := utils.GetEnv("GIN_MODE", gin.ReleaseMode, log)
	gin.SetMode(mode)

	engine := gin.New()
	engine.Use(gin.Recovery())

	origins := utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000", log)
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(origins, ","),
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	engine.GET("/", health.Root)
	engine.GET("/healthcheck", health.Healthcheck)
	engine.POST("/upload", upload.Upload)
	engine.GET("/status/:job_id", status.GetStatus)
	engine.GET("/lesson/:lesson_id", status.GetLesson)

	return &Router{engine: engine}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) Run(addr string) error {
	return r.engine.Run(addr)
}
