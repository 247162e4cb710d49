package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// Success shapes are endpoint-specific; failures share one envelope.
func Error(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func int64Query(c *gin.Context, name string, fallback int64) int64 {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

// intQueryPtr distinguishes "absent" from zero for optional filters.
func intQueryPtr(c *gin.Context, name string) *int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}

func int64Param(c *gin.Context, name string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
