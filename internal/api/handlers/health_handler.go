package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const livenessText = "Whisper Transcriber API is running."

func Index(c *gin.Context) {
	c.String(http.StatusOK, livenessText)
}
