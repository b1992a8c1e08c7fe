package handlers

import (
	"bytes"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoscribe/internal/repositories/auditlog"
	"github.com/yoockh/yoscribe/internal/services"
)

type AdminHandler struct {
	audit services.AuditService
}

func NewAdminHandler(audit services.AuditService) *AdminHandler {
	return &AdminHandler{audit: audit}
}

// DownloadCSV serves the tabular audit sink. Routes must put it behind
// middleware.AdminSession.
func (h *AdminHandler) DownloadCSV(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.audit.ExportCSV(c.Request.Context(), &buf); err != nil {
		writeError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": auditlog.TableFile}))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
