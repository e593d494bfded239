package api

import (
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templatesFS embed.FS

// NewServer builds the router. Admin pages and the JSON API are only
// mounted when adminPassword is set.
func NewServer(handler *Handler, adminPassword string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	r.SetHTMLTemplate(template.Must(template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html")))

	setupRoutes(r, handler, adminPassword)

	return r
}

var templateFuncs = template.FuncMap{
	"formatTime": func(t *time.Time) string {
		if t == nil {
			return "never"
		}
		return t.UTC().Format("2006-01-02 15:04 UTC")
	},
}

func setupRoutes(r *gin.Engine, handler *Handler, adminPassword string) {
	r.GET("/", handler.GetLatest)
	r.GET("/archive", handler.GetArchive)
	r.GET("/digests/:filename", handler.GetDigest)
	r.GET("/feed.xml", handler.GetDigestFeed)
	r.GET("/health", handler.GetHealth)

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})

	if adminPassword == "" {
		slog.Info("Admin interface and API disabled (ADMIN_PASSWORD not set)")
		return
	}

	admin := r.Group("/admin")
	admin.Use(gin.BasicAuth(gin.Accounts{"admin": adminPassword}))
	{
		admin.GET("", handler.AdminIndex)
		admin.POST("/feeds", handler.AdminAddFeed)
		admin.POST("/feeds/:id/delete", handler.AdminDeleteFeed)
		admin.POST("/feeds/:id/toggle", handler.AdminToggleFeed)
		admin.POST("/feeds/:id/category", handler.AdminSetFeedCategory)
		admin.POST("/recipients", handler.AdminSaveRecipients)
		admin.POST("/recipients/add", handler.AdminAddRecipient)
		admin.POST("/recipients/delete", handler.AdminDeleteRecipient)
		admin.POST("/intro", handler.AdminSaveIntro)
		admin.POST("/run", handler.AdminRunDigest)
		admin.GET("/digests/:filename", handler.AdminViewDigest)
	}

	api := r.Group("/api")
	api.Use(authMiddleware(adminPassword))
	{
		api.GET("/feeds", handler.APIListFeeds)
		api.POST("/feeds", handler.APIAddFeed)
		api.GET("/feeds/:id", handler.APIGetFeed)
		api.PATCH("/feeds/:id", handler.APIUpdateFeed)
		api.DELETE("/feeds/:id", handler.APIDeleteFeed)
		api.GET("/recipients", handler.APIListRecipients)
		api.PUT("/recipients", handler.APISetRecipients)
		api.POST("/recipients", handler.APIAddRecipient)
		api.DELETE("/recipients/:email", handler.APIDeleteRecipient)
		api.GET("/intro", handler.APIGetIntro)
		api.PUT("/intro", handler.APISetIntro)
		api.GET("/digests", handler.APIListDigests)
		api.GET("/stats", handler.APIGetStats)
		api.POST("/run", handler.APIRunDigest)
	}

	slog.Info("Admin interface and API enabled")
}
