package service

import (
	"fmt"
	"image"

	"github.com/TIANLI0/MatteKit/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const (
	DefaultBlurKernel = 15

	cannyLow  = 50
	cannyHigh = 150
)

// sepiaKernel 按 RGB 排列的褐色调矩阵
var sepiaKernel = [3][3]float32{
	{0.393, 0.769, 0.189},
	{0.349, 0.686, 0.168},
	{0.272, 0.534, 0.131},
}

// FilterBank 无状态的单图滤镜，输入均为 8-bit BGR
type FilterBank struct {
	blurKernel int
}

func NewFilterBank(blurKernel int) *FilterBank {
	if blurKernel <= 0 {
		blurKernel = DefaultBlurKernel
	}
	return &FilterBank{blurKernel: blurKernel}
}

// Grayscale 按亮度加权转为单通道
func (fb *FilterBank) Grayscale(img *gocv.Mat) (gocv.Mat, error) {
	if err := validateImage(img); err != nil {
		return gocv.NewMat(), err
	}

	gray := gocv.NewMat()
	gocv.CvtColor(*img, &gray, gocv.ColorBGRToGray)
	return gray, nil
}

// Blur 高斯模糊，偶数核大小加一
func (fb *FilterBank) Blur(img *gocv.Mat) (gocv.Mat, error) {
	return fb.BlurWithKernel(img, fb.blurKernel)
}

func (fb *FilterBank) BlurWithKernel(img *gocv.Mat, kernelSize int) (gocv.Mat, error) {
	if err := validateImage(img); err != nil {
		return gocv.NewMat(), err
	}

	k := OddKernel(kernelSize)
	blurred := gocv.NewMat()
	gocv.GaussianBlur(*img, &blurred, image.Point{X: k, Y: k}, 0, 0, gocv.BorderDefault)
	return blurred, nil
}

// Sepia 对每个像素应用固定的 3x3 混色矩阵，结果饱和到 [0,255]
func (fb *FilterBank) Sepia(img *gocv.Mat) (gocv.Mat, error) {
	if err := validateImage(img); err != nil {
		return gocv.NewMat(), err
	}

	// 图像为 BGR，行列都需要倒序
	kernel := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV32F)
	defer kernel.Close()
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			kernel.SetFloatAt(row, col, sepiaKernel[2-row][2-col])
		}
	}

	sepia := gocv.NewMat()
	gocv.Transform(*img, &sepia, kernel)
	return sepia, nil
}

// EdgeDetection 灰度 -> 5x5 高斯去噪 -> Canny，结果复制为三通道
func (fb *FilterBank) EdgeDetection(img *gocv.Mat) (gocv.Mat, error) {
	gray, err := fb.Grayscale(img)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer gray.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: 5, Y: 5}, 0, 0, gocv.BorderDefault)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(blurred, &edges, cannyLow, cannyHigh)

	out := gocv.NewMat()
	gocv.CvtColor(edges, &out, gocv.ColorGrayToBGR)
	return out, nil
}

// Threshold 灰度后使用 Otsu 自动阈值二值化，结果复制为三通道
func (fb *FilterBank) Threshold(img *gocv.Mat) (gocv.Mat, error) {
	gray, err := fb.Grayscale(img)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer gray.Close()

	binary := gocv.NewMat()
	defer binary.Close()
	level := gocv.Threshold(gray, &binary, 0, 255, gocv.ThresholdBinary+gocv.ThresholdOtsu)
	utils.Logger.Debug("otsu threshold selected", zap.Float32("level", level))

	out := gocv.NewMat()
	gocv.CvtColor(binary, &out, gocv.ColorGrayToBGR)
	return out, nil
}

// OddKernel 把核大小修正为正奇数
func OddKernel(size int) int {
	if size < 1 {
		return 1
	}
	if size%2 == 0 {
		return size + 1
	}
	return size
}

func validateImage(img *gocv.Mat) error {
	if img == nil || img.Empty() || img.Rows() == 0 || img.Cols() == 0 {
		return ErrInvalidImage
	}
	if img.Type() != gocv.MatTypeCV8UC3 {
		return fmt.Errorf("%w: expected 8-bit BGR, got %d channels", ErrInvalidImage, img.Channels())
	}
	return nil
}
