package compute

// 复平面视窗
const (
	viewMinRe = -2.5
	viewMaxRe = 1.0
	viewMinIm = -1.0
	viewMaxIm = 1.0
)

// EscapeTime 返回点 c = cr + ci·i 在 maxIter 次迭代内的逃逸步数，未逃逸返回 maxIter。
func EscapeTime(cr, ci float64, maxIter int) int {
	zr, zi := 0.0, 0.0
	for i := 0; i < maxIter; i++ {
		zr2, zi2 := zr*zr, zi*zi
		if zr2+zi2 > 4.0 {
			return i
		}
		zi = 2*zr*zi + ci
		zr = zr2 - zi2 + cr
	}
	return maxIter
}

// RenderMandelbrotTile 计算分块内每个像素的逃逸步数，按行存储。
func RenderMandelbrotTile(width, height int, tile Tile, maxIter int) []uint16 {
	data := make([]uint16, tile.Pixels())
	for py := 0; py < tile.Height; py++ {
		ci := viewMinIm + (viewMaxIm-viewMinIm)*float64(tile.Y+py)/float64(height)
		row := data[py*tile.Width : (py+1)*tile.Width]
		for px := range row {
			cr := viewMinRe + (viewMaxRe-viewMinRe)*float64(tile.X+px)/float64(width)
			row[px] = uint16(EscapeTime(cr, ci, maxIter))
		}
	}
	return data
}

// MandelbrotRenderer 返回 width×height 画布上的渲染函数，结果为分块的逃逸步数。
// 返回的函数没有共享状态，可以被多个 worker 并发调用。
func MandelbrotRenderer(width, height int) RenderFunc {
	return func(tile Tile, maxIter int) ([]uint16, error) {
		return RenderMandelbrotTile(width, height, tile, maxIter), nil
	}
}
