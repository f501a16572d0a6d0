package handler

import (
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/Baaaki/mealmender/pkg/apperror"
	"github.com/Baaaki/mealmender/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var statusByCode = map[apperror.Code]int{
	apperror.CodeInvalidArgument:    http.StatusBadRequest,
	apperror.CodeNotFound:           http.StatusNotFound,
	apperror.CodeAlreadyExists:      http.StatusConflict,
	apperror.CodePermissionDenied:   http.StatusForbidden,
	apperror.CodeUnauthenticated:    http.StatusUnauthorized,
	apperror.CodeFailedPrecondition: http.StatusConflict,
}

// respondError renders a service error as {"error": message}. Internal
// errors are logged and replaced by a generic message.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		if status, ok := statusByCode[appErr.Code]; ok {
			c.AbortWithStatusJSON(status, gin.H{"error": appErr.Message})
			return
		}
	}

	logger.Log.Error("Request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
}

var bindingOnce sync.Once

// configureBinding makes gin reject unknown JSON fields, so a patch cannot
// smuggle in owner, status or tracking fields, and reports validation errors
// by their JSON names.
func configureBinding() {
	bindingOnce.Do(func() {
		binding.EnableDecoderDisallowUnknownFields = true
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(func(f reflect.StructField) string {
				name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
				if name == "-" {
					return ""
				}
				return name
			})
		}
	})
}

// bindJSON binds and validates the body, answering 400 on failure.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		logger.Log.Warn("Request body rejected",
			zap.String("path", c.FullPath()),
			zap.String("ip", c.ClientIP()),
			zap.Error(err),
		)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": bindErrorMessage(err)})
		return false
	}
	return true
}

func bindErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, io.EOF):
		return "Request body is required"
	case errors.As(err, &verrs):
		missing := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			if fe.Tag() != "required" {
				return "invalid " + fe.Field()
			}
			missing = append(missing, fe.Field())
		}
		return "please provide all required fields: " + strings.Join(missing, ", ")
	}
	return "Invalid request body"
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// pageNumber reads ?pageNumber=, defaulting to 1.
func pageNumber(c *gin.Context) int {
	n, err := strconv.Atoi(c.DefaultQuery("pageNumber", "1"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}
