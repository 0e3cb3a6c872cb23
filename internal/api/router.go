package api

import (
	"html/template"
	"path"

	"gatehouse/internal/action"
	"gatehouse/internal/auth"
	"gatehouse/internal/config"
	"gatehouse/internal/flash"
	"gatehouse/internal/metrics"
	"gatehouse/internal/user"
	"gatehouse/web"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Deps wires the handlers to their collaborators. Mailer and Metrics may be
// nil.
type Deps struct {
	Config     *config.Config
	Redis      *redis.Client
	Store      *user.Store
	Flashes    *flash.Store
	Dispatcher *action.Dispatcher
	Mailer     Mailer
	Metrics    *metrics.Metrics
}

func SetupRouter(d Deps) *gin.Engine {
	cfg := d.Config
	r := gin.Default()
	r.Use(SecurityHeaders())
	r.SetHTMLTemplate(template.Must(template.ParseFS(web.Templates, "templates/*.html")))

	subpath := path.Join("/", cfg.Server.Subpath)
	r.Static(path.Join(subpath, "static"), path.Join(cfg.App.Dir, "static"))

	requireLogin := auth.AuthMiddleware(cfg, d.Redis, d.Store)

	group := r.Group(subpath)
	{
		group.GET("/health", healthHandler(d))
		group.GET("/config", configHandler(cfg))
		if d.Metrics != nil {
			group.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{})))
		}

		// Auth
		group.GET("/login", LoginPageHandler(d))
		group.GET("/register", RegisterPageHandler(d))
		group.POST("/auth/login", LoginHandler(d))
		group.POST("/auth/register", RegisterHandler(d))
		group.POST("/auth/logout", requireLogin, LogoutHandler(d))
		group.POST("/auth/password", requireLogin, ChangePasswordHandler(d))
		group.GET("/auth/me", requireLogin, MeHandler())

		// Pages
		group.GET("/", requireLogin, HomeHandler(d))
		group.GET("/admin", requireLogin, auth.RequirePermission("view_acp"), AdminHandler(d))
		group.GET("/settings", requireLogin, auth.RequirePermission("view_ucp"), SettingsHandler(d))

		// Actions
		group.POST("/action", requireLogin, ActionHandler(d))

		// --- Online users count ---
		group.GET("/users/online", requireLogin, OnlineUserCountHandler(d))
	}
	return r
}
