package compute

// Tile 栅格中的一个矩形子区域，TaskID 按行优先扫描顺序从 0 递增。
type Tile struct {
	TaskID int `json:"task_id"`
	X      int `json:"tile_x"` // 左上角列
	Y      int `json:"tile_y"` // 左上角行
	Width  int `json:"tile_w"`
	Height int `json:"tile_h"`
}

// Pixels 返回该分块包含的像素数。
func (t Tile) Pixels() int {
	return t.Width * t.Height
}

// Overlaps 判断两个分块是否有重叠像素。
func (t Tile) Overlaps(o Tile) bool {
	return t.X < o.X+o.Width && o.X < t.X+t.Width &&
		t.Y < o.Y+o.Height && o.Y < t.Y+t.Height
}

// Partition 将 [0,width)×[0,height) 按 tileW×tileH 切分，行优先。
// 最后一行/列的分块会被裁剪到栅格边界，不做填充。
func Partition(width, height, tileW, tileH int) []Tile {
	if width <= 0 || height <= 0 || tileW <= 0 || tileH <= 0 {
		return nil
	}
	cols := (width + tileW - 1) / tileW
	rows := (height + tileH - 1) / tileH
	tiles := make([]Tile, 0, cols*rows)

	taskID := 0
	for y := 0; y < height; y += tileH {
		h := min(tileH, height-y)
		for x := 0; x < width; x += tileW {
			tiles = append(tiles, Tile{
				TaskID: taskID,
				X:      x,
				Y:      y,
				Width:  min(tileW, width-x),
				Height: h,
			})
			taskID++
		}
	}
	return tiles
}

// TileCount 不生成分块，直接计算分块总数。
func TileCount(width, height, tileW, tileH int) int {
	if width <= 0 || height <= 0 || tileW <= 0 || tileH <= 0 {
		return 0
	}
	return ((width + tileW - 1) / tileW) * ((height + tileH - 1) / tileH)
}
