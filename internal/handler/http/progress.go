package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"parallel-quest/internal/service"
)

// ProgressHandler 个人和房间模块进度
type ProgressHandler struct {
	progress *service.ProgressService
}

func NewProgressHandler(progress *service.ProgressService) *ProgressHandler {
	if progress == nil {
		panic("ProgressService cannot be nil for ProgressHandler")
	}
	return &ProgressHandler{progress: progress}
}

type CompleteModuleRequest struct {
	ModuleNumber int `json:"module_number" binding:"required"`
}

// CompleteModule POST /api/progress/complete
func (h *ProgressHandler) CompleteModule(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req CompleteModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: module_number is required")
		return
	}

	res, err := h.progress.CompleteModule(c.Request.Context(), userID, req.ModuleNumber)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{
		"message":           completionMessage(res),
		"module_number":     res.ModuleNumber,
		"completed_modules": res.CompletedModules,
		"room_id":           res.RoomID,
		"room_progress":     res.RoomProgress,
	})
}

func completionMessage(res *service.CompleteModuleResult) string {
	rp := res.RoomProgress
	switch {
	case rp != nil && rp.IsDemoReset:
		return "Congratulations! The demo room completed every module and has been reset"
	case rp != nil && rp.RoomComplete:
		return "Congratulations! Your room completed every module and has been closed"
	case rp != nil && rp.ModuleComplete:
		return fmt.Sprintf("Module %d completed by the whole room", res.ModuleNumber)
	default:
		return fmt.Sprintf("Module %d completed", res.ModuleNumber)
	}
}

// MyProgress GET /api/progress/my-progress
func (h *ProgressHandler) MyProgress(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	p, err := h.progress.UserProgress(c.Request.Context(), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, p)
}

// UserProgress GET /api/progress/user/:id
func (h *ProgressHandler) UserProgress(c *gin.Context) {
	userID, ok := uintParam(c, "id")
	if !ok {
		return
	}
	p, err := h.progress.UserProgress(c.Request.Context(), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, p)
}

// ToggleModule PUT /api/progress/admin/toggle/:user_id/:module (管理员)
func (h *ProgressHandler) ToggleModule(c *gin.Context) {
	userID, ok := uintParam(c, "user_id")
	if !ok {
		return
	}
	module, err := strconv.Atoi(c.Param("module"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid module")
		return
	}

	res, err := h.progress.ToggleModule(c.Request.Context(), userID, module)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, res)
}
