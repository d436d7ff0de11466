package service

import (
	"fmt"
	"image"
	"image/color"

	"github.com/TIANLI0/MatteKit/config"
	"gocv.io/x/gocv"
)

const (
	defaultMaskThreshold = 0.5
	defaultCloseKernel   = 3
	defaultFeatherSigma  = 2.0
)

// MaskProcessor 负责把模型概率图细化为可用于合成的 alpha 蒙版
type MaskProcessor struct {
	threshold    float32
	closeKernel  int
	featherSigma float64
	keepLargest  bool
}

func NewMaskProcessor(cfg *config.SegmentationConfig) *MaskProcessor {
	mp := DefaultMaskProcessor()
	if cfg == nil {
		return mp
	}
	if cfg.Threshold > 0 && cfg.Threshold < 1 {
		mp.threshold = float32(cfg.Threshold)
	}
	if cfg.CloseKernel > 0 {
		mp.closeKernel = cfg.CloseKernel
	}
	if cfg.FeatherSigma > 0 {
		mp.featherSigma = cfg.FeatherSigma
	}
	mp.keepLargest = cfg.KeepLargest
	return mp
}

func DefaultMaskProcessor() *MaskProcessor {
	return &MaskProcessor{
		threshold:    defaultMaskThreshold,
		closeKernel:  defaultCloseKernel,
		featherSigma: defaultFeatherSigma,
	}
}

// Refine 二值化 -> 闭运算 -> 高斯羽化，结果限制在 [0,1]
func (mp *MaskProcessor) Refine(mask ProbabilityMask) (AlphaMatte, error) {
	if mask.Empty() {
		return AlphaMatte{}, fmt.Errorf("refine mask: %w", ErrInvalidImage)
	}

	binary := mp.Binarize(mask)
	defer binary.Close()

	closed := mp.CloseHoles(&binary)
	if mp.keepLargest {
		largest := mp.KeepLargest(&closed)
		closed.Close()
		closed = largest
	}
	defer closed.Close()

	return AlphaMatte{mat: mp.Feather(&closed)}, nil
}

// Binarize 概率严格大于阈值的像素置 1，其余置 0
func (mp *MaskProcessor) Binarize(mask ProbabilityMask) gocv.Mat {
	src := mask.Mat
	if src.Type() != gocv.MatTypeCV32FC1 {
		converted := gocv.NewMat()
		defer converted.Close()
		src.ConvertTo(&converted, gocv.MatTypeCV32FC1)
		src = converted
	}

	binary := gocv.NewMat()
	gocv.Threshold(src, &binary, mp.threshold, 1.0, gocv.ThresholdBinary)
	return binary
}

// CloseHoles 椭圆结构元素的闭运算，填补前景内部的小孔洞
func (mp *MaskProcessor) CloseHoles(mask *gocv.Mat) gocv.Mat {
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: mp.closeKernel, Y: mp.closeKernel})
	defer kernel.Close()

	closed := gocv.NewMat()
	gocv.MorphologyEx(*mask, &closed, gocv.MorphClose, kernel)
	return closed
}

// Feather 各向同性高斯模糊，核大小由 sigma 推导
func (mp *MaskProcessor) Feather(mask *gocv.Mat) gocv.Mat {
	feathered := gocv.NewMat()
	gocv.GaussianBlur(*mask, &feathered, image.Point{}, mp.featherSigma, mp.featherSigma, gocv.BorderDefault)

	// 截断到 [0,1]
	gocv.Threshold(feathered, &feathered, 1.0, 1.0, gocv.ThresholdTrunc)
	gocv.Threshold(feathered, &feathered, 0, 0, gocv.ThresholdToZero)
	return feathered
}

// KeepLargest 只保留最大的前景连通区域
func (mp *MaskProcessor) KeepLargest(mask *gocv.Mat) gocv.Mat {
	binary := gocv.NewMat()
	defer binary.Close()
	mask.ConvertToWithParams(&binary, gocv.MatTypeCV8U, 255, 0)

	contours := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	if contours.Size() == 0 {
		return mask.Clone()
	}

	maxArea := 0.0
	maxIndex := 0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > maxArea {
			maxArea = area
			maxIndex = i
		}
	}

	largest := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), mask.Rows(), mask.Cols(), gocv.MatTypeCV8U)
	defer largest.Close()
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	gocv.DrawContours(&largest, contours, maxIndex, white, -1)

	// 轮廓外的前景被丢弃，轮廓内的孔洞沿用闭运算结果
	kept := gocv.NewMat()
	defer kept.Close()
	gocv.BitwiseAnd(binary, largest, &kept)

	result := gocv.NewMat()
	kept.ConvertToWithParams(&result, gocv.MatTypeCV32FC1, 1.0/255, 0)
	return result
}
