package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thespeedingatom/soviario-app-sub000/internal/http/middleware"
	"github.com/thespeedingatom/soviario-app-sub000/internal/http/validation"
	"github.com/thespeedingatom/soviario-app-sub000/internal/modules/auth"
	"github.com/thespeedingatom/soviario-app-sub000/internal/shared/apperr"
)

type authService interface {
	Signup(ctx context.Context, email, password string) (auth.User, error)
	Authenticate(ctx context.Context, email, password string) (auth.User, error)
	CreateSession(ctx context.Context, userID string) (string, auth.Session, error)
	DeleteSession(ctx context.Context, token string) error
	StartVerification(ctx context.Context, userID string) (string, error)
	ConfirmVerification(ctx context.Context, token string) (auth.User, error)
}

type verificationMailer interface {
	SendVerification(ctx context.Context, to, token string) error
}

type AuthHandler struct {
	Logger     *slog.Logger
	Auth       authService
	Mail       verificationMailer
	CookieName string
	Secure     bool
}

func NewAuthHandler(logger *slog.Logger, svc authService, mail verificationMailer, cookieName string, secure bool) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{Logger: logger, Auth: svc, Mail: mail, CookieName: cookieName, Secure: secure}
}

type credentialsInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type verifyInput struct {
	Token string `json:"token" binding:"required,max=128"`
}

type userJSON struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
}

func userOf(u auth.User) userJSON {
	return userJSON{ID: u.ID, Email: u.Email, Role: u.Role, EmailVerified: u.EmailVerified()}
}

// POST /api/auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var in credentialsInput
	if err := c.ShouldBindJSON(&in); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Check the highlighted fields.", validation.FromBindError(err, &in)))
		return
	}
	u, err := h.Auth.Signup(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	if err := h.sendVerification(c.Request.Context(), u); err != nil {
		// the account stays usable; the user can ask for a new link
		h.Logger.WarnContext(c.Request.Context(), "verification_email_failed",
			slog.String("user_id", u.ID), slog.String("error", err.Error()))
	}
	h.startSession(c, u, http.StatusCreated)
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var in credentialsInput
	if err := c.ShouldBindJSON(&in); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Check the highlighted fields.", validation.FromBindError(err, &in)))
		return
	}
	u, err := h.Auth.Authenticate(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	h.startSession(c, u, http.StatusOK)
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if token, err := c.Cookie(h.CookieName); err == nil && token != "" {
		if err := h.Auth.DeleteSession(c.Request.Context(), token); err != nil {
			middleware.Fail(c, apperr.Wrap(err))
			return
		}
	}
	middleware.ClearSessionCookie(c, h.CookieName, h.Secure)
	c.Status(http.StatusNoContent)
}

// POST /api/auth/verify-email
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var in verifyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Check the highlighted fields.", validation.FromBindError(err, &in)))
		return
	}
	u, err := h.Auth.ConfirmVerification(c.Request.Context(), in.Token)
	if err != nil {
		middleware.Fail(c, toAppErr(err))
		return
	}
	c.JSON(http.StatusOK, userOf(u))
}

// POST /api/auth/verify-email/resend
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)
	if u.EmailVerified() {
		c.JSON(http.StatusOK, gin.H{"ok": true, "email_verified": true})
		return
	}
	if err := h.sendVerification(c.Request.Context(), u); err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"ok": true, "sent": true})
}

func (h *AuthHandler) sendVerification(ctx context.Context, u auth.User) error {
	token, err := h.Auth.StartVerification(ctx, u.ID)
	if err != nil {
		return err
	}
	if h.Mail == nil {
		return nil
	}
	return h.Mail.SendVerification(ctx, u.Email, token)
}

func (h *AuthHandler) startSession(c *gin.Context, u auth.User, status int) {
	token, sess, err := h.Auth.CreateSession(c.Request.Context(), u.ID)
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}
	maxAge := int(sess.ExpiresAt.Sub(sess.CreatedAt).Seconds())
	middleware.SetSessionCookie(c, h.CookieName, token, maxAge, h.Secure)
	middleware.SetCurrentUser(c, u)
	c.JSON(status, userOf(u))
}
