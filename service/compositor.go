package service

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"
)

// Compositor 按 alpha 蒙版线性混合前景与背景
type Compositor struct{}

func NewCompositor() *Compositor {
	return &Compositor{}
}

// Blend out = fg*a + bg*(1-a)，逐通道浮点计算后四舍五入并截断到 [0,255]
func (c *Compositor) Blend(fg, bg *gocv.Mat, matte AlphaMatte) (gocv.Mat, error) {
	if err := checkForeground(fg, matte); err != nil {
		return gocv.NewMat(), err
	}
	if bg == nil || bg.Empty() || bg.Rows() != fg.Rows() || bg.Cols() != fg.Cols() {
		return gocv.NewMat(), fmt.Errorf("%w: foreground %s, background %s", ErrDimensionMismatch, dims(fg), dims(bg))
	}
	if bg.Type() != gocv.MatTypeCV8UC3 {
		return gocv.NewMat(), fmt.Errorf("%w: background must be 8-bit BGR", ErrInvalidImage)
	}

	alpha, err := matte.values()
	if err != nil {
		return gocv.NewMat(), err
	}

	fgData := fg.ToBytes()
	bgData := bg.ToBytes()
	out := make([]byte, len(fgData))
	for i, a := range alpha {
		w := clampUnit(float64(a))
		for ch := 0; ch < 3; ch++ {
			j := i*3 + ch
			out[j] = clampByte(float64(fgData[j])*w + float64(bgData[j])*(1-w))
		}
	}

	return gocv.NewMatFromBytes(fg.Rows(), fg.Cols(), gocv.MatTypeCV8UC3, out)
}

// Transparent 输出 BGRA：颜色通道原样保留，alpha = round(a*255)
func (c *Compositor) Transparent(fg *gocv.Mat, matte AlphaMatte) (gocv.Mat, error) {
	if err := checkForeground(fg, matte); err != nil {
		return gocv.NewMat(), err
	}

	alpha, err := matte.values()
	if err != nil {
		return gocv.NewMat(), err
	}

	fgData := fg.ToBytes()
	out := make([]byte, len(alpha)*4)
	for i, a := range alpha {
		copy(out[i*4:i*4+3], fgData[i*3:i*3+3])
		out[i*4+3] = clampByte(float64(a) * 255)
	}

	return gocv.NewMatFromBytes(fg.Rows(), fg.Cols(), gocv.MatTypeCV8UC4, out)
}

func checkForeground(fg *gocv.Mat, matte AlphaMatte) error {
	if fg == nil || fg.Empty() {
		return fmt.Errorf("composite: %w", ErrInvalidImage)
	}
	if fg.Type() != gocv.MatTypeCV8UC3 {
		return fmt.Errorf("%w: foreground must be 8-bit BGR", ErrInvalidImage)
	}
	if matte.Empty() || matte.Rows() != fg.Rows() || matte.Cols() != fg.Cols() {
		return fmt.Errorf("%w: foreground %s, matte %dx%d", ErrDimensionMismatch, dims(fg), matte.Cols(), matte.Rows())
	}
	return nil
}

func dims(m *gocv.Mat) string {
	if m == nil {
		return "none"
	}
	return fmt.Sprintf("%dx%d", m.Cols(), m.Rows())
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func clampByte(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
