package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/yoockh/yoscribe/internal/utils"
)

type APIError struct {
	Error string `json:"error"`
}

// writeError renders err as {"error": message}. The message is the one the
// audit log records for the same failure.
func writeError(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)
	_ = c.Error(err)
	c.JSON(status, APIError{Error: utils.MessageOf(err)})
}
