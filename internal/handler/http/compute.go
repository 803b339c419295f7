package http

import (
	"errors"
	"io"
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"

	"parallel-quest/internal/compute"
	"parallel-quest/internal/service"
)

// ComputeHandler 分块渲染接口
type ComputeHandler struct {
	compute *service.ComputeService
}

func NewComputeHandler(compute *service.ComputeService) *ComputeHandler {
	if compute == nil {
		panic("ComputeService cannot be nil for ComputeHandler")
	}
	return &ComputeHandler{compute: compute}
}

// BindParams 以默认参数为基础读取参数：GET 读查询串，其余读 JSON 请求体。
// 缺省的字段保留默认值。
func BindParams(c *gin.Context) (compute.Params, error) {
	p := compute.DefaultParams()
	if c.Request.Method == http.MethodGet {
		if err := c.ShouldBindQuery(&p); err != nil {
			return p, err
		}
		return p, nil
	}
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return p, nil
	}
	if err := c.ShouldBindJSON(&p); err != nil && !errors.Is(err, io.EOF) {
		return p, err
	}
	return p, nil
}

// Health GET /api/compute/health
func (h *ComputeHandler) Health(c *gin.Context) {
	cfg := h.compute.Config()
	SuccessResponse(c, http.StatusOK, gin.H{
		"status":            "ok",
		"cpus":              runtime.NumCPU(),
		"max_time_limit_ms": cfg.MaxTimeLimitMs,
		"max_pixels":        cfg.MaxPixels,
		"async_jobs":        h.compute.AsyncEnabled(),
		"defaults":          compute.DefaultParams(),
	})
}

// RunSequential GET|POST /api/compute/sequential
func (h *ComputeHandler) RunSequential(c *gin.Context) {
	h.run(c, compute.ModeSequential)
}

// RunConcurrent GET|POST /api/compute/concurrent
func (h *ComputeHandler) RunConcurrent(c *gin.Context) {
	h.run(c, compute.ModeConcurrent)
}

func (h *ComputeHandler) run(c *gin.Context, mode compute.Mode) {
	p, err := BindParams(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid compute parameters")
		return
	}
	p.Mode = mode

	res, err := h.compute.Run(p, nil)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, res)
}

// SubmitJob POST /api/compute/jobs
func (h *ComputeHandler) SubmitJob(c *gin.Context) {
	p, err := BindParams(c)
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid compute parameters")
		return
	}
	job, err := h.compute.Enqueue(c.Request.Context(), p)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusAccepted, job)
}

// GetJob GET /api/compute/jobs/:id
func (h *ComputeHandler) GetJob(c *gin.Context) {
	job, err := h.compute.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, job)
}
