package routes

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoscribe/internal/api/handlers"
	"github.com/yoockh/yoscribe/internal/api/middleware"
	"github.com/yoockh/yoscribe/internal/services"
)

type Deps struct {
	Transcribe *handlers.TranscribeHandler
	Auth       *handlers.AuthHandler
	Admin      *handlers.AdminHandler

	AuthService    services.AuthService
	AllowedOrigins []string
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.Use(cors.New(corsConfig(d.AllowedOrigins)))
	r.SetHTMLTemplate(handlers.Templates())

	r.GET("/", handlers.Index)

	r.POST("/transcribe", d.Transcribe.Transcribe)
	r.POST("/verify-password", d.Auth.VerifyPassword)
	r.POST("/admin-auth", d.Auth.AdminAuth)

	// Admin session (token from /admin-auth)
	admin := r.Group("/")
	admin.Use(middleware.AdminSession(d.AuthService))
	admin.GET("/download-csv", d.Admin.DownloadCSV)
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-Id"},
		ExposeHeaders: []string{"Content-Disposition", "X-Request-Id"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
