package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"parallel-quest/internal/service"
)

// HandleServiceError 把业务错误映射为 HTTP 状态码，其余一律 500 且不暴露细节。
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRoomNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrJobNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrProtectedRoom),
		errors.Is(err, service.ErrNotRoomMember):
		ErrorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrInvalidModule),
		errors.Is(err, service.ErrInvalidRoomCode),
		errors.Is(err, service.ErrInvalidRoomName),
		errors.Is(err, service.ErrInvalidComputeParams):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrJoinConflict):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrAsyncUnavailable):
		ErrorResponse(c, http.StatusServiceUnavailable, err.Error())
	default:
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
