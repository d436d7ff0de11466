package service

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/TIANLI0/MatteKit/config"
	"github.com/TIANLI0/MatteKit/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// MaskSource 根据 BGR 图像给出逐像素前景概率，输出尺寸与输入一致
type MaskSource interface {
	Predict(ctx context.Context, img *gocv.Mat) (ProbabilityMask, error)
	Close() error
}

// NewMaskSource 按配置选择分割后端，DNN 模型文件缺失时退回 GrabCut
func NewMaskSource(cfg *config.SegmentationConfig) (MaskSource, error) {
	switch cfg.Backend {
	case "grabcut":
		return NewGrabCutSegmenter(cfg), nil
	case "", "dnn":
		if cfg.ModelPath == "" {
			utils.Logger.Warn("segmentation model not configured, using grabcut")
			return NewGrabCutSegmenter(cfg), nil
		}
		if _, err := os.Stat(cfg.ModelPath); err != nil {
			utils.Logger.Warn("segmentation model not found, using grabcut",
				zap.String("model_path", cfg.ModelPath),
				zap.Error(err))
			return NewGrabCutSegmenter(cfg), nil
		}
		return NewDNNSegmenter(cfg)
	default:
		return nil, fmt.Errorf("unknown segmentation backend %q", cfg.Backend)
	}
}

type segmentationNet struct {
	net gocv.Net
}

func (n *segmentationNet) Close() error {
	return n.net.Close()
}

// DNNSegmenter 使用人像分割网络生成概率图
type DNNSegmenter struct {
	pool      *InstancePool[*segmentationNet]
	inputSize int
}

func NewDNNSegmenter(cfg *config.SegmentationConfig) (*DNNSegmenter, error) {
	if cfg.InputSize <= 0 {
		return nil, fmt.Errorf("invalid segmentation input size %d", cfg.InputSize)
	}

	pool, err := NewInstancePool(cfg.PoolSize, func() (*segmentationNet, error) {
		net := gocv.ReadNet(cfg.ModelPath, "")
		if net.Empty() {
			_ = net.Close()
			return nil, fmt.Errorf("failed to load segmentation model %s", cfg.ModelPath)
		}
		_ = net.SetPreferableBackend(gocv.NetBackendDefault)
		_ = net.SetPreferableTarget(gocv.NetTargetCPU)
		return &segmentationNet{net: net}, nil
	})
	if err != nil {
		return nil, err
	}

	utils.Logger.Info("segmentation model loaded",
		zap.String("model_path", cfg.ModelPath),
		zap.Int("input_size", cfg.InputSize),
		zap.Int("pool_size", pool.Size()))

	return &DNNSegmenter{pool: pool, inputSize: cfg.InputSize}, nil
}

// Predict 推理并把输出缩放回原图尺寸
func (s *DNNSegmenter) Predict(ctx context.Context, img *gocv.Mat) (ProbabilityMask, error) {
	if err := validateImage(img); err != nil {
		return ProbabilityMask{}, err
	}

	size := image.Point{X: s.inputSize, Y: s.inputSize}
	blob := gocv.BlobFromImage(*img, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	var raw []byte
	err := s.pool.With(ctx, func(n *segmentationNet) error {
		n.net.SetInput(blob, "")
		out := n.net.Forward("")
		defer out.Close()

		if out.Empty() {
			return fmt.Errorf("segmentation network returned no output")
		}
		if out.Total() != s.inputSize*s.inputSize {
			return fmt.Errorf("unexpected segmentation output size %v", out.Size())
		}
		raw = out.ToBytes()
		return nil
	})
	if err != nil {
		return ProbabilityMask{}, err
	}

	small, err := gocv.NewMatFromBytes(s.inputSize, s.inputSize, gocv.MatTypeCV32FC1, raw)
	if err != nil {
		return ProbabilityMask{}, fmt.Errorf("wrap segmentation output: %w", err)
	}
	defer small.Close()

	prob := gocv.NewMat()
	gocv.Resize(small, &prob, image.Point{X: img.Cols(), Y: img.Rows()}, 0, 0, gocv.InterpolationLinear)
	gocv.Threshold(prob, &prob, 1.0, 1.0, gocv.ThresholdTrunc)
	gocv.Threshold(prob, &prob, 0, 0, gocv.ThresholdToZero)

	return ProbabilityMask{Mat: prob}, nil
}

func (s *DNNSegmenter) Close() error {
	return s.pool.Close()
}
