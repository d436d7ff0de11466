package service

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"gocv.io/x/gocv"
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// BackgroundPreparer 把背景参数解析为与前景同尺寸的 BGR 图像
type BackgroundPreparer struct{}

func NewBackgroundPreparer() *BackgroundPreparer {
	return &BackgroundPreparer{}
}

// ParseHexColor 解析 "#RRGGBB" 或 "RRGGBB"，格式错误时返回白色
func ParseHexColor(s string) color.RGBA {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return white
	}

	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return white
	}

	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}

// SolidBackground 生成 width x height 的纯色背景
func (bp *BackgroundPreparer) SolidBackground(hex string, width, height int) (gocv.Mat, error) {
	if width <= 0 || height <= 0 {
		return gocv.NewMat(), fmt.Errorf("solid background %dx%d: %w", width, height, ErrInvalidImage)
	}

	c := ParseHexColor(hex)
	// OpenCV 使用 BGR 通道顺序
	scalar := gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0)
	return gocv.NewMatWithSizeFromScalar(scalar, height, width, gocv.MatTypeCV8UC3), nil
}

// FitBackground 将背景图缩放到目标尺寸，尺寸一致时直接复制
func (bp *BackgroundPreparer) FitBackground(bg *gocv.Mat, width, height int) (gocv.Mat, error) {
	if bg == nil || bg.Empty() {
		return gocv.NewMat(), ErrMissingBackground
	}
	if width <= 0 || height <= 0 {
		return gocv.NewMat(), fmt.Errorf("fit background %dx%d: %w", width, height, ErrInvalidImage)
	}

	src := *bg
	switch src.Channels() {
	case 1:
		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.CvtColor(src, &bgr, gocv.ColorGrayToBGR)
		src = bgr
	case 4:
		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.CvtColor(src, &bgr, gocv.ColorBGRAToBGR)
		src = bgr
	}

	if src.Cols() == width && src.Rows() == height {
		return src.Clone(), nil
	}

	resized := gocv.NewMat()
	gocv.Resize(src, &resized, image.Point{X: width, Y: height}, 0, 0, gocv.InterpolationLinear)
	return resized, nil
}
