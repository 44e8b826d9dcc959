package router

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/helpy/paths"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/psds-microservice/ticket-desk/api"
	"github.com/psds-microservice/ticket-desk/internal/handler"
)

type Options struct {
	AllowedOrigins []string
	Production     bool
	Ready          handler.Pinger
	Logger         *slog.Logger
}

func New(ticketHandler *handler.TicketHandler, opts Options) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	if opts.Logger != nil {
		r.Use(requestLogger(opts.Logger))
	}
	if mw, ok := corsMiddleware(opts.AllowedOrigins, opts.Production); ok {
		r.Use(mw)
	}

	r.GET(paths.PathHealth, handler.Health)
	r.GET(paths.PathReady, handler.Ready(opts.Ready))
	r.GET(paths.PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, paths.PathSwagger+"/") })
	r.GET(paths.PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = paths.PathSwagger + "/index.html"
			c.Request.RequestURI = paths.PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(paths.PathSwagger+"/openapi.json"))(c)
	})

	tickets := r.Group("/tickets")
	{
		tickets.GET("", ticketHandler.List)
		tickets.POST("", ticketHandler.Create)
		tickets.GET("/:id", ticketHandler.Get)
		tickets.PATCH("/:id", ticketHandler.UpdateStatus)
		tickets.DELETE("/:id", ticketHandler.Delete)
	}

	return r
}

// corsMiddleware: вне production разрешены все origin; в production только явный allowlist,
// пустой allowlist: CORS-заголовки не выставляются вовсе.
func corsMiddleware(origins []string, production bool) (gin.HandlerFunc, bool) {
	cfg := cors.DefaultConfig()
	switch {
	case len(origins) > 0:
		cfg.AllowOrigins = origins
	case production:
		return nil, false
	default:
		cfg.AllowAllOrigins = true
	}
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	cfg.AddAllowHeaders("Content-Type")
	cfg.AddExposeHeaders("Content-Length")
	return cors.New(cfg), true
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Error("http request", args...)
		case status >= 400:
			log.Warn("http request", args...)
		default:
			log.Debug("http request", args...)
		}
	}
}
