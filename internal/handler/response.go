package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// envelope is the uniform response body. Code is 0 on success and the
// HTTP status on errors, so clients can branch on the body alone.
type envelope struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, envelope{Message: "ok", Data: data, Meta: meta})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, envelope{Code: status, Message: message, Meta: meta})
}
