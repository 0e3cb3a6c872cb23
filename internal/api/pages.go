package api

import (
	"log"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"gatehouse/internal/action"
	"gatehouse/internal/auth"
	"gatehouse/internal/config"
	"gatehouse/internal/flash"

	"github.com/gin-gonic/gin"
)

const defaultTheme = "default"

// basePath is the subpath prefix used when building links, without a
// trailing slash. It is empty when the app is mounted at the root.
func basePath(cfg *config.Config) string {
	return strings.TrimSuffix(path.Join("/", cfg.Server.Subpath), "/")
}

func wantsJSON(c *gin.Context) bool {
	if c.ContentType() == gin.MIMEJSON {
		return true
	}
	accept := c.GetHeader("Accept")
	return strings.Contains(accept, gin.MIMEJSON) && !strings.Contains(accept, gin.MIMEHTML)
}

// pageData builds the template data shared by every page and drains the
// current user's pending flash messages.
func pageData(c *gin.Context, d Deps, title string, extra gin.H) gin.H {
	u := auth.CurrentUser(c)
	data := gin.H{
		"title":    title,
		"appTitle": d.Config.App.Title,
		"subpath":  basePath(d.Config),
		"theme":    d.Config.App.DefaultTheme,
		"user":     u,
		"flashes":  []flash.Message(nil),
	}
	if u != nil {
		if theme := u.Settings.Data().Theme; theme != "" {
			data["theme"] = theme
		}
		if d.Flashes != nil {
			msgs, err := d.Flashes.Pop(c.Request.Context(), u.ID)
			if err != nil {
				log.Printf("[Flash] pop for %s failed: %v", u.Username, err)
			}
			data["flashes"] = msgs
		}
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

func pushFlash(c *gin.Context, d Deps, userID uint, msg flash.Message) {
	if d.Flashes == nil {
		return
	}
	if err := d.Flashes.Push(c.Request.Context(), userID, msg); err != nil {
		log.Printf("[Flash] push failed: %v", err)
	}
}

// Themes lists "default" followed by every bootstrap.<name>.min.css found in
// the configured themes directory.
func Themes(cfg *config.Config) []string {
	dir := cfg.App.ThemesDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(cfg.App.Dir, dir)
	}
	themes := []string{defaultTheme}
	matches, err := filepath.Glob(filepath.Join(dir, "bootstrap.*.min.css"))
	if err != nil {
		return themes
	}
	for _, m := range matches {
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), "bootstrap."), ".min.css")
		if name != "" && name != defaultTheme {
			themes = append(themes, name)
		}
	}
	return themes
}

func LoginPageHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "login.html", pageData(c, d, "Login", nil))
	}
}

func RegisterPageHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "register.html", pageData(c, d, "Register", nil))
	}
}

func HomeHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "home.html", pageData(c, d, "Home", nil))
	}
}

// AdminHandler lists the users and roles strictly below the viewer's level,
// along with any report stashed by the viewer's last application action.
func AdminHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := auth.CurrentUser(c)
		ctx := c.Request.Context()
		level := u.MaxLevel()

		users, err := d.Store.ListUsersBelow(ctx, level)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Failed to list users"}})
			return
		}
		roles, err := d.Store.ListRolesBelow(ctx, level)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Failed to list roles"}})
			return
		}
		var report string
		if d.Flashes != nil {
			if report, err = d.Flashes.PopResult(ctx, u.ID); err != nil {
				log.Printf("[Admin] failed to read stashed result: %v", err)
			}
		}
		canManageApp, canManageRoles := false, false
		if d.Dispatcher != nil {
			canManageApp = d.Dispatcher.Allowed(u, action.ApplicationInfo)
			canManageRoles = d.Dispatcher.Allowed(u, action.UpdateUserRole)
		}
		c.HTML(http.StatusOK, "admin.html", pageData(c, d, "Admin", gin.H{
			"adminResult":    report,
			"canManageApp":   canManageApp,
			"canManageRoles": canManageRoles,
			"users":          users,
			"roles":          roles,
		}))
	}
}

func SettingsHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := auth.CurrentUser(c)
		settings := u.Settings.Data()
		if settings.Theme == "" {
			settings.Theme = d.Config.App.DefaultTheme
		}
		c.HTML(http.StatusOK, "settings.html", pageData(c, d, "Settings", gin.H{
			"settings": settings,
			"themes":   Themes(d.Config),
		}))
	}
}

