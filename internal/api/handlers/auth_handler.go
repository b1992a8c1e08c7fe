package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoscribe/internal/services"
	"github.com/yoockh/yoscribe/internal/utils"
)

type AuthHandler struct {
	auth  services.AuthService
	audit services.AuditService
}

func NewAuthHandler(auth services.AuthService, audit services.AuditService) *AuthHandler {
	return &AuthHandler{auth: auth, audit: audit}
}

// VerifyPassword lets a client check its credential before uploading.
func (h *AuthHandler) VerifyPassword(c *gin.Context) {
	if !h.auth.AllowedRequester(c.PostForm("password")) {
		c.String(http.StatusUnauthorized, "Unauthorized")
		return
	}
	c.String(http.StatusOK, "OK")
}

// AdminAuth checks the administrator credential and renders the audit
// report. The CSV link in the page carries a session token, not the password.
func (h *AuthHandler) AdminAuth(c *gin.Context) {
	const op = "AuthHandler.AdminAuth"

	if !h.auth.AdminMatches(c.PostForm("password")) {
		writeError(c, utils.E(utils.CodeUnauthorized, op, "Unauthorized", nil))
		return
	}

	rep, err := h.audit.Report(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	token, exp, err := h.auth.IssueAdminToken()
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.HTML(http.StatusOK, reportTemplate, gin.H{
		"Report":    rep,
		"Token":     token,
		"ExpiresAt": exp,
	})
}
