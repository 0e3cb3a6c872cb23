package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"gatehouse/internal/auth"
	"gatehouse/internal/flash"
	"gatehouse/internal/user"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

// Mailer sends the registration mail.
type Mailer interface {
	SendWelcome(ctx context.Context, to, username string) error
}

const mailTimeout = 30 * time.Second

type LoginRequest struct {
	Identity string `json:"identity" form:"identity"`
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (r LoginRequest) identity() string {
	for _, v := range []string{r.Identity, r.Username, r.Email} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type LoginResponse struct {
	Token    string   `json:"token"`
	UserID   uint     `json:"userId"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

type RegisterRequest struct {
	Username string `json:"username" form:"username" binding:"required,max=255"`
	Email    string `json:"email" form:"email" binding:"required,email,max=255"`
	Password string `json:"password" form:"password" binding:"required,min=1"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" form:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" form:"new_password" binding:"required"`
}

func LoginHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBind(&req); err != nil || req.identity() == "" || req.Password == "" {
			loginFailed(c, d, http.StatusBadRequest, "Invalid request")
			return
		}
		ctx := c.Request.Context()
		u, err := d.Store.FindUserByIdentity(ctx, req.identity())
		if err != nil {
			if !errors.Is(err, user.ErrUserNotFound) {
				log.Printf("[Auth] login lookup failed: %v", err)
			}
			loginFailed(c, d, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		if err := user.CheckPassword(u.PasswordHash, req.Password); err != nil {
			loginFailed(c, d, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		if !u.Active {
			loginFailed(c, d, http.StatusUnauthorized, "Account is disabled")
			return
		}
		token, ok := startSession(c, d, u)
		if !ok {
			return
		}
		if d.Metrics != nil {
			d.Metrics.ObserveLogin(true)
		}
		log.Printf("[Auth] %s logged in from %s", u.Username, c.ClientIP())
		if wantsJSON(c) {
			c.JSON(http.StatusOK, LoginResponse{
				Token:    token,
				UserID:   u.ID,
				Username: u.Username,
				Roles:    u.RoleNames(),
			})
			return
		}
		auth.SetSessionCookie(c, d.Config, token)
		c.Redirect(http.StatusFound, basePath(d.Config)+"/")
	}
}

// startSession issues a token, records the Redis session and tracks the
// login. On failure the response has already been written.
func startSession(c *gin.Context, d Deps, u *user.User) (string, bool) {
	ctx := c.Request.Context()
	token, err := auth.GenerateJWT(d.Config.Server.JWTSecret, u.ID, u.Username, u.FsUniquifier, auth.TokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Failed to generate token"}})
		return "", false
	}
	if err := auth.SetSession(ctx, d.Redis, u.ID, token, auth.IdleTimeout); err != nil {
		log.Printf("[Auth] failed to store session for %s: %v", u.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "Failed to create session"}})
		return "", false
	}
	if err := d.Store.TrackLogin(ctx, u, c.ClientIP(), time.Now()); err != nil {
		log.Printf("[Auth] failed to track login for %s: %v", u.Username, err)
	}
	return token, true
}

func loginFailed(c *gin.Context, d Deps, status int, msg string) {
	if d.Metrics != nil {
		d.Metrics.ObserveLogin(false)
	}
	if wantsJSON(c) {
		c.JSON(status, gin.H{"error": gin.H{"message": msg}})
		return
	}
	c.HTML(status, "login.html", pageData(c, d, "Login", gin.H{"error": msg}))
}

func RegisterHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBind(&req); err != nil {
			registerFailed(c, d, http.StatusBadRequest, "Username, a valid email and a password are required")
			return
		}
		req.Username = strings.TrimSpace(req.Username)
		req.Email = strings.TrimSpace(req.Email)
		if req.Username == "" {
			registerFailed(c, d, http.StatusBadRequest, "Username, a valid email and a password are required")
			return
		}
		ctx := c.Request.Context()
		role, err := d.Store.FindRole(ctx, d.Config.App.DefaultRole)
		if err != nil {
			log.Printf("[Auth] default role %q unavailable: %v", d.Config.App.DefaultRole, err)
			registerFailed(c, d, http.StatusInternalServerError, "Registration is unavailable")
			return
		}
		hash, err := user.HashPassword(req.Password)
		if err != nil {
			registerFailed(c, d, http.StatusInternalServerError, "Failed to hash password")
			return
		}
		u := &user.User{
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: hash,
			Active:       true,
		}
		u.Settings = datatypes.NewJSONType(user.Settings{Theme: d.Config.App.DefaultTheme})
		if err := d.Store.CreateUser(ctx, u, *role); err != nil {
			switch {
			case errors.Is(err, user.ErrUsernameTaken):
				registerFailed(c, d, http.StatusBadRequest, "Username already exists")
			case errors.Is(err, user.ErrEmailTaken):
				registerFailed(c, d, http.StatusBadRequest, "Email already registered")
			default:
				log.Printf("[Auth] failed to create user %s: %v", u.Username, err)
				registerFailed(c, d, http.StatusInternalServerError, "Failed to create user")
			}
			return
		}
		log.Printf("[Auth] registered %s with role %s", u.Username, role.Name)
		if d.Mailer != nil {
			go sendWelcome(d.Mailer, u.Email, u.Username)
		}

		if wantsJSON(c) {
			c.JSON(http.StatusCreated, gin.H{"id": u.ID, "username": u.Username, "roles": []string{role.Name}})
			return
		}
		u.Roles = []user.Role{*role}
		token, ok := startSession(c, d, u)
		if !ok {
			return
		}
		pushFlash(c, d, u.ID, flash.Message{Category: "success", Text: "Thank you for registering."})
		auth.SetSessionCookie(c, d.Config, token)
		c.Redirect(http.StatusFound, basePath(d.Config)+"/")
	}
}

func sendWelcome(m Mailer, to, username string) {
	ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
	defer cancel()
	if err := m.SendWelcome(ctx, to, username); err != nil {
		log.Printf("[Mail] welcome mail to %s failed: %v", to, err)
	}
}

func registerFailed(c *gin.Context, d Deps, status int, msg string) {
	if wantsJSON(c) {
		c.JSON(status, gin.H{"error": gin.H{"message": msg}})
		return
	}
	c.HTML(status, "register.html", pageData(c, d, "Register", gin.H{"error": msg}))
}

func LogoutHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId, exists := c.Get("userId")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Not authenticated"}})
			return
		}
		_ = auth.DeleteSession(c.Request.Context(), d.Redis, userId.(uint))
		if wantsJSON(c) {
			c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
			return
		}
		auth.ClearSessionCookie(c, d.Config)
		c.Redirect(http.StatusFound, basePath(d.Config)+"/login")
	}
}

// ChangePasswordHandler rotates the user's uniquifier along with the hash, so
// every token issued before the change stops working, including the caller's.
func ChangePasswordHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := auth.CurrentUser(c)
		var req ChangePasswordRequest
		if err := c.ShouldBind(&req); err != nil {
			passwordResult(c, d, u, http.StatusBadRequest, "danger", "Insufficient parameters in request.")
			return
		}
		if err := user.CheckPassword(u.PasswordHash, req.CurrentPassword); err != nil {
			passwordResult(c, d, u, http.StatusBadRequest, "danger", "Invalid password")
			return
		}
		hash, err := user.HashPassword(req.NewPassword)
		if err != nil {
			passwordResult(c, d, u, http.StatusInternalServerError, "danger", "Failed to hash password")
			return
		}
		ctx := c.Request.Context()
		if err := d.Store.SetPassword(ctx, u, hash); err != nil {
			log.Printf("[Auth] failed to set password for %s: %v", u.Username, err)
			passwordResult(c, d, u, http.StatusInternalServerError, "danger", "Failed to update password")
			return
		}
		log.Printf("[Auth] %s changed password", u.Username)
		_ = auth.DeleteSession(ctx, d.Redis, u.ID)
		if wantsJSON(c) {
			c.JSON(http.StatusOK, gin.H{"message": "Password changed"})
			return
		}
		auth.ClearSessionCookie(c, d.Config)
		c.Redirect(http.StatusFound, basePath(d.Config)+"/login")
	}
}

func passwordResult(c *gin.Context, d Deps, u *user.User, status int, category, msg string) {
	if wantsJSON(c) {
		c.JSON(status, gin.H{"error": gin.H{"message": msg}})
		return
	}
	pushFlash(c, d, u.ID, flash.Message{Category: category, Text: msg})
	c.Redirect(http.StatusFound, basePath(d.Config)+"/settings")
}

func MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		u := auth.CurrentUser(c)
		if u == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": "Not authenticated"}})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":          u.ID,
			"username":    u.Username,
			"email":       u.Email,
			"roles":       u.RoleNames(),
			"settings":    u.Settings.Data(),
			"loginCount":  u.LoginCount,
			"lastLoginAt": u.LastLoginAt,
			"createdAt":   u.CreatedAt,
		})
	}
}
