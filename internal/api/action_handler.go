package api

import (
	"errors"
	"net/http"
	"net/url"

	"gatehouse/internal/action"
	"gatehouse/internal/auth"
	"gatehouse/internal/flash"

	"github.com/gin-gonic/gin"
)

const maxFormMemory = 1 << 20

// ActionHandler dispatches one named action from a form post. The outcome
// is flashed and the browser sent back where it came from, except for
// results the dispatcher marks for direct delivery.
func ActionHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := auth.CurrentUser(c)
		if err := c.Request.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "Invalid form"}})
			return
		}
		params := make(map[string]string, len(c.Request.PostForm))
		for k, v := range c.Request.PostForm {
			if k == "action" || len(v) == 0 {
				continue
			}
			params[k] = v[0]
		}

		res := d.Dispatcher.Dispatch(c.Request.Context(), action.Request{
			Action: c.Request.PostForm.Get("action"),
			Actor:  u,
			Params: params,
		})
		if res.Transport == action.TransportDirect {
			c.String(http.StatusOK, res.Body)
			return
		}
		pushFlash(c, d, u.ID, flash.Message{Category: string(res.Category), Text: res.Message})
		c.Redirect(http.StatusFound, backTo(c, basePath(d.Config)+"/"))
	}
}

// backTo returns the referring path when it points at this host, otherwise
// fallback.
func backTo(c *gin.Context, fallback string) string {
	ref := c.GetHeader("Referer")
	if ref == "" {
		return fallback
	}
	u, err := url.Parse(ref)
	if err != nil || (u.Host != "" && u.Host != c.Request.Host) || u.Path == "" {
		return fallback
	}
	if u.RawQuery != "" {
		return u.Path + "?" + u.RawQuery
	}
	return u.Path
}
