package handlers

import (
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoscribe/internal/models"
	"github.com/yoockh/yoscribe/internal/services"
	"github.com/yoockh/yoscribe/internal/utils"
)

// room for the password and format fields plus multipart framing
const multipartOverhead = 1 << 20

const subtitleContentType = "application/x-subrip"

type TranscribeHandler struct {
	svc      services.TranscriptionService
	maxBytes int64
}

// NewTranscribeHandler rejects audio larger than maxBytes; zero disables
// the limit.
func NewTranscribeHandler(svc services.TranscriptionService, maxBytes int64) *TranscribeHandler {
	return &TranscribeHandler{svc: svc, maxBytes: maxBytes}
}

func (h *TranscribeHandler) Transcribe(c *gin.Context) {
	const op = "TranscribeHandler.Transcribe"

	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	}

	fh, err := c.FormFile("audio")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(c, utils.E(utils.CodeTooLarge, op, h.tooLargeMessage(), err))
			return
		}
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "No audio file uploaded.", err))
		return
	}
	if h.maxBytes > 0 && fh.Size > h.maxBytes {
		writeError(c, utils.E(utils.CodeTooLarge, op, h.tooLargeMessage(), nil))
		return
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "No audio file uploaded.", err))
		return
	}
	defer f.Close()

	res, err := h.svc.Transcribe(c.Request.Context(), models.TranscriptionRequest{
		Credential:      c.PostForm("password"),
		Filename:        fh.Filename,
		RequestedFormat: c.DefaultPostForm("format", models.DefaultRequestedFormat),
		Audio:           f,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if res.Format == models.FormatText {
		c.JSON(http.StatusOK, gin.H{"text": res.Text})
		return
	}

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.SubtitleFilename}))
	c.Data(http.StatusOK, subtitleContentType, res.Subtitle)
}

func (h *TranscribeHandler) tooLargeMessage() string {
	return fmt.Sprintf("Audio file too large (max %d MB).", h.maxBytes>>20)
}
