package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"korner-support-service/internal/apierror"
	"korner-support-service/internal/middleware"
)

// respondError пишет конверт {"error": {...}}. Неожиданные ошибки логируются
// и превращаются в серверный код модуля.
func respondError(c *gin.Context, err error, serverCode apierror.ErrorCode, production bool) {
	var apiErr *apierror.APIError
	if !errors.As(err, &apiErr) {
		logrus.Errorf("[http][%s %s][err] %v", c.Request.Method, c.FullPath(), err)
	}
	apiErr = apierror.Resolve(err, serverCode, production)
	c.AbortWithStatusJSON(apiErr.Status(), gin.H{"error": apiErr})
}

// bindJSON reports a malformed body as a validation error of the module.
func bindJSON(c *gin.Context, dst interface{}, code apierror.ErrorCode) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		apiErr := apierror.WithFields(code, "Validation failed", apierror.FieldError{Field: "body", Message: err.Error()})
		c.AbortWithStatusJSON(apiErr.Status(), gin.H{"error": apiErr})
		return false
	}
	return true
}

// requireUser достаёт userId, выставленный Auth.Required.
func requireUser(c *gin.Context, code apierror.ErrorCode) (int64, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		apiErr := apierror.New(code, "Authorization required")
		c.AbortWithStatusJSON(apiErr.Status(), gin.H{"error": apiErr})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}
