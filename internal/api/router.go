package api

import (
	"net/http"
	"time"

	"github.com/ChaseRain/slidegen/internal/infra/logger"
	"github.com/ChaseRain/slidegen/internal/service/orchestrator"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const sessionKey = "session_id"

type Options struct {
	CookieName     string
	CookieMaxAge   time.Duration
	SecureCookie   bool
	AllowedOrigins []string
}

func NewRouter(orch *orchestrator.Orchestrator, client GenerationClient, log *logger.Logger, opts Options) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.SetHTMLTemplate(loadTemplates())

	handler := NewHandler(orch, client, log, opts)

	r.GET("/health", handler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	web := r.Group("/", sessionCookie(opts))
	{
		web.GET("/", handler.Index)
		web.POST("/generate", handler.Generate)
		web.GET("/preview", handler.Preview)
		web.POST("/download", handler.Redownload)
		web.GET("/download", handler.Download)
		web.POST("/reset", handler.Reset)
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = opts.AllowedOrigins
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}

	v1 := r.Group("/v1", cors.New(corsConfig))
	{
		v1.POST("/generate", handler.APIGenerate)
		v1.GET("/health/upstream", handler.UpstreamHealth)
	}

	return r
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		log.Debug("request started",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
		c.Next()
		log.Info("request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// sessionCookie identifies the browser. The id only keys server-side state;
// it carries no data of its own.
func sessionCookie(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(opts.CookieName)
		if err != nil || uuid.Validate(id) != nil {
			id = uuid.New().String()
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(opts.CookieName, id, int(opts.CookieMaxAge.Seconds()), "/", "", opts.SecureCookie, true)
		c.Set(sessionKey, id)
		c.Next()
	}
}

func sessionID(c *gin.Context) string {
	return c.GetString(sessionKey)
}
