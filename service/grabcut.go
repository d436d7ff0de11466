package service

import (
	"context"
	"image"

	"github.com/TIANLI0/MatteKit/config"
	"github.com/TIANLI0/MatteKit/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// GrabCut 掩码取值
const (
	gcBackground         = 0
	gcForeground         = 1
	gcProbableBackground = 2
	gcProbableForeground = 3
)

// GrabCutSegmenter 无需模型的分割后端：显著性图给出初始种子，GrabCut 迭代求前景
// 输出只有 0 和 1 两种概率
type GrabCutSegmenter struct {
	iterations int
	maxSide    int
}

func NewGrabCutSegmenter(cfg *config.SegmentationConfig) *GrabCutSegmenter {
	s := &GrabCutSegmenter{iterations: 5, maxSide: 1200}
	if cfg != nil && cfg.GrabCutIterations > 0 {
		s.iterations = cfg.GrabCutIterations
	}
	if cfg != nil && cfg.GrabCutMaxSide > 0 {
		s.maxSide = cfg.GrabCutMaxSide
	}
	return s
}

// Predict 在缩小后的图上运行 GrabCut，再把前景掩码放大回原尺寸
func (s *GrabCutSegmenter) Predict(ctx context.Context, img *gocv.Mat) (ProbabilityMask, error) {
	if err := validateImage(img); err != nil {
		return ProbabilityMask{}, err
	}
	if err := ctx.Err(); err != nil {
		return ProbabilityMask{}, err
	}

	width, height := img.Cols(), img.Rows()
	scaled := s.smartResize(img)
	defer scaled.Close()

	saliency := s.saliencyMap(&scaled)
	defer saliency.Close()

	mask := s.seedMask(&saliency)
	defer mask.Close()

	bgdModel := gocv.NewMat()
	defer bgdModel.Close()
	fgdModel := gocv.NewMat()
	defer fgdModel.Close()

	if s.hasForegroundSeed(&mask) {
		gocv.GrabCut(scaled, &mask, image.Rectangle{}, &bgdModel, &fgdModel, s.iterations, gocv.GCInitWithMask)
	} else {
		// 没有显著区域时退化为中心矩形初始化
		rect := s.centerRect(scaled.Cols(), scaled.Rows())
		gocv.GrabCut(scaled, &mask, rect, &bgdModel, &fgdModel, s.iterations, gocv.GCInitWithRect)
	}

	fg := s.extractForeground(&mask)
	defer fg.Close()

	if fg.Cols() != width || fg.Rows() != height {
		resized := gocv.NewMat()
		gocv.Resize(fg, &resized, image.Point{X: width, Y: height}, 0, 0, gocv.InterpolationNearestNeighbor)
		fg.Close()
		fg = resized
	}

	prob := gocv.NewMat()
	fg.ConvertToWithParams(&prob, gocv.MatTypeCV32FC1, 1.0/255, 0)

	utils.Logger.Debug("grabcut mask computed",
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("scaled_width", scaled.Cols()),
		zap.Int("iterations", s.iterations))

	return ProbabilityMask{Mat: prob}, nil
}

func (s *GrabCutSegmenter) Close() error {
	return nil
}

// smartResize 最长边超过 maxSide 时等比缩小
func (s *GrabCutSegmenter) smartResize(img *gocv.Mat) gocv.Mat {
	width, height := img.Cols(), img.Rows()
	maxDim := max(width, height)
	if maxDim <= s.maxSide {
		return img.Clone()
	}

	scale := float64(s.maxSide) / float64(maxDim)
	size := image.Point{X: max(1, int(float64(width)*scale)), Y: max(1, int(float64(height)*scale))}

	resized := gocv.NewMat()
	gocv.Resize(*img, &resized, size, 0, 0, gocv.InterpolationArea)
	return resized
}

// saliencyMap 梯度幅值模糊后用 Otsu 二值化
func (s *GrabCutSegmenter) saliencyMap(img *gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(*img, &gray, gocv.ColorBGRToGray)

	gradX := gocv.NewMat()
	defer gradX.Close()
	gradY := gocv.NewMat()
	defer gradY.Close()
	gocv.Sobel(gray, &gradX, gocv.MatTypeCV16S, 1, 0, 3, 1, 0, gocv.BorderDefault)
	gocv.Sobel(gray, &gradY, gocv.MatTypeCV16S, 0, 1, 3, 1, 0, gocv.BorderDefault)

	absX := gocv.NewMat()
	defer absX.Close()
	absY := gocv.NewMat()
	defer absY.Close()
	gocv.ConvertScaleAbs(gradX, &absX, 1, 0)
	gocv.ConvertScaleAbs(gradY, &absY, 1, 0)

	gradient := gocv.NewMat()
	defer gradient.Close()
	gocv.AddWeighted(absX, 0.5, absY, 0.5, 0, &gradient)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gradient, &blurred, image.Point{X: 21, Y: 21}, 0, 0, gocv.BorderDefault)

	saliency := gocv.NewMat()
	gocv.Threshold(blurred, &saliency, 0, 255, gocv.ThresholdBinary+gocv.ThresholdOtsu)
	return saliency
}

// seedMask 边框为确定背景，膨胀后的显著区域为可能前景，其余为可能背景
func (s *GrabCutSegmenter) seedMask(saliency *gocv.Mat) gocv.Mat {
	width, height := saliency.Cols(), saliency.Rows()
	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(gcProbableBackground, 0, 0, 0), height, width, gocv.MatTypeCV8U)

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 11, Y: 11})
	defer kernel.Close()
	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(*saliency, &dilated, kernel)

	border := int(float64(min(width, height)) * 0.03)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			switch {
			case x < border || x >= width-border || y < border || y >= height-border:
				mask.SetUCharAt(y, x, gcBackground)
			case dilated.GetUCharAt(y, x) > 128:
				mask.SetUCharAt(y, x, gcProbableForeground)
			}
		}
	}
	return mask
}

func (s *GrabCutSegmenter) hasForegroundSeed(mask *gocv.Mat) bool {
	seed := gocv.NewMat()
	defer seed.Close()
	gocv.InRangeWithScalar(*mask, gocv.NewScalar(gcProbableForeground, 0, 0, 0), gocv.NewScalar(gcProbableForeground, 0, 0, 0), &seed)
	return gocv.CountNonZero(seed) > 0
}

func (s *GrabCutSegmenter) centerRect(width, height int) image.Rectangle {
	bx := max(1, width/10)
	by := max(1, height/10)
	return image.Rect(bx, by, max(bx+1, width-bx), max(by+1, height-by))
}

// extractForeground 确定前景和可能前景置 255
func (s *GrabCutSegmenter) extractForeground(mask *gocv.Mat) gocv.Mat {
	sure := gocv.NewMat()
	defer sure.Close()
	gocv.InRangeWithScalar(*mask, gocv.NewScalar(gcForeground, 0, 0, 0), gocv.NewScalar(gcForeground, 0, 0, 0), &sure)

	probable := gocv.NewMat()
	defer probable.Close()
	gocv.InRangeWithScalar(*mask, gocv.NewScalar(gcProbableForeground, 0, 0, 0), gocv.NewScalar(gcProbableForeground, 0, 0, 0), &probable)

	fg := gocv.NewMat()
	gocv.BitwiseOr(sure, probable, &fg)
	return fg
}
