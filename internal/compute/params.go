package compute

import (
	"math"
	"time"
)

// Mode 执行模式
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeConcurrent Mode = "concurrent"
)

const (
	// MaxIterLimit 迭代次数上限，逃逸计数按 uint16 存储
	MaxIterLimit = math.MaxUint16
	// MaxTiles 单次运行允许的分块数上限
	MaxTiles = 1 << 20
	// MaxWorkers 并发模式的 worker 上限
	MaxWorkers = 256
	// MaxDimension 画布和分块单边的像素上限，保证 width*height 不会溢出
	MaxDimension = 1 << 16
	// MaxPixels 单次运行的像素总数上限，单个分块的逃逸计数缓冲不会超过它
	MaxPixels = 1 << 26
	// MaxTimeLimitMs 时间预算上限，换算成 time.Duration 不会溢出
	MaxTimeLimitMs = int64(24 * time.Hour / time.Millisecond)
)

// Params 一次分块渲染运行的参数。
// form 标签用于 GET 查询参数绑定。
type Params struct {
	Width       int   `json:"width" form:"width"`
	Height      int   `json:"height" form:"height"`
	TileWidth   int   `json:"tile_w" form:"tile_w"`
	TileHeight  int   `json:"tile_h" form:"tile_h"`
	MaxIter     int   `json:"max_iter" form:"max_iter"`
	TimeLimitMs int64 `json:"time_limit_ms" form:"time_limit_ms"` // 整个运行共享的时间预算，0 表示立即过期
	Mode        Mode  `json:"mode" form:"mode"`
	NumWorkers  int   `json:"num_workers,omitempty" form:"num_workers"` // 仅并发模式，0 表示使用 CPU 核数
}

// DefaultParams 返回前端演示使用的默认参数。
func DefaultParams() Params {
	return Params{
		Width:       800,
		Height:      600,
		TileWidth:   64,
		TileHeight:  64,
		MaxIter:     256,
		TimeLimitMs: 2000,
		Mode:        ModeSequential,
		NumWorkers:  4,
	}
}

func (p Params) TimeLimit() time.Duration {
	return time.Duration(p.TimeLimitMs) * time.Millisecond
}

func (p Params) Validate() error {
	switch {
	case p.Width <= 0 || p.Height <= 0:
		return invalidParams("width and height must be positive")
	case p.Width > MaxDimension || p.Height > MaxDimension:
		return invalidParams("width and height must not exceed %d", MaxDimension)
	case p.TileWidth <= 0 || p.TileHeight <= 0:
		return invalidParams("tile dimensions must be positive")
	case p.TileWidth > MaxDimension || p.TileHeight > MaxDimension:
		return invalidParams("tile dimensions must not exceed %d", MaxDimension)
	case p.Width > MaxPixels/p.Height:
		return invalidParams("image must not exceed %d pixels", MaxPixels)
	case p.MaxIter <= 0 || p.MaxIter > MaxIterLimit:
		return invalidParams("max_iter must be between 1 and %d", MaxIterLimit)
	case p.TimeLimitMs < 0 || p.TimeLimitMs > MaxTimeLimitMs:
		return invalidParams("time_limit_ms must be between 0 and %d", MaxTimeLimitMs)
	case p.NumWorkers < 0 || p.NumWorkers > MaxWorkers:
		return invalidParams("num_workers must be between 0 and %d", MaxWorkers)
	}
	if p.Mode != ModeSequential && p.Mode != ModeConcurrent {
		return invalidParams("unknown mode %q", p.Mode)
	}
	if n := TileCount(p.Width, p.Height, p.TileWidth, p.TileHeight); n > MaxTiles {
		return invalidParams("too many tiles (%d > %d)", n, MaxTiles)
	}
	return nil
}
