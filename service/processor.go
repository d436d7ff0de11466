package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/TIANLI0/MatteKit/config"
	"github.com/TIANLI0/MatteKit/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// 支持的处理动作
const (
	ActionGrayscale     = "grayscale"
	ActionBlur          = "blur"
	ActionSepia         = "sepia"
	ActionEdgeDetection = "edge_detection"
	ActionFaceMesh      = "face_mesh"
	ActionThreshold     = "threshold"
	ActionRemoveBG      = "remove_bg"
	ActionReplaceBG     = "replace_bg"
)

// 背景模式
const (
	BackgroundModeImage = "image"
	BackgroundModeColor = "color"
)

var actions = map[string]struct{}{
	ActionGrayscale:     {},
	ActionBlur:          {},
	ActionSepia:         {},
	ActionEdgeDetection: {},
	ActionFaceMesh:      {},
	ActionThreshold:     {},
	ActionRemoveBG:      {},
	ActionReplaceBG:     {},
}

// IsKnownAction 判断动作是否受支持
func IsKnownAction(action string) bool {
	_, ok := actions[action]
	return ok
}

// ProcessRequest 一次处理请求的全部输入
type ProcessRequest struct {
	Action          string
	Image           []byte
	Background      []byte
	BackgroundMode  string
	BackgroundColor string
}

// UsesColorBackground 只有 color 模式且给出颜色值时才使用纯色背景
func (r *ProcessRequest) UsesColorBackground() bool {
	return r.BackgroundMode == BackgroundModeColor && r.BackgroundColor != ""
}

// CacheKey 由动作、背景参数和图像内容共同决定
func (r *ProcessRequest) CacheKey() string {
	return utils.PartsMD5(
		[]byte(r.Action),
		[]byte(r.BackgroundMode),
		[]byte(r.BackgroundColor),
		r.Image,
		r.Background,
	)
}

// ProcessResult 处理结果，Elapsed 只包含处理步骤本身的耗时
type ProcessResult struct {
	Action      string        `json:"action"`
	ImageBase64 string        `json:"image_base64"`
	Elapsed     time.Duration `json:"elapsed"`
	Width       int           `json:"width"`
	Height      int           `json:"height"`
	Cached      bool          `json:"-"`
}

// ExecutionTime 以毫秒格式化耗时，如 "12.34 ms"
func (r *ProcessResult) ExecutionTime() string {
	return fmt.Sprintf("%.2f ms", float64(r.Elapsed)/float64(time.Millisecond))
}

// Processor 分发处理动作：滤镜、人脸网格、背景移除与替换
type Processor struct {
	filters     *FilterBank
	masks       MaskSource
	refiner     *MaskProcessor
	compositor  *Compositor
	backgrounds *BackgroundPreparer
	landmarker  FaceLandmarker
	drawer      *FaceMeshDrawer
	cache       ResultCache
	semaphore   chan struct{}
}

// NewProcessor landmarker 和 cache 可以为 nil
func NewProcessor(cfg *config.Config, masks MaskSource, landmarker FaceLandmarker, cache ResultCache) *Processor {
	maxConcurrent := cfg.Processing.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	return &Processor{
		filters:     NewFilterBank(cfg.Processing.BlurKernelSize),
		masks:       masks,
		refiner:     NewMaskProcessor(&cfg.Segmentation),
		compositor:  NewCompositor(),
		backgrounds: NewBackgroundPreparer(),
		landmarker:  landmarker,
		drawer:      NewFaceMeshDrawer(),
		cache:       cache,
		semaphore:   make(chan struct{}, maxConcurrent),
	}
}

// Process 校验参数、解码、执行动作并编码为 base64 PNG
func (p *Processor) Process(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	if !IsKnownAction(req.Action) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, req.Action)
	}
	if req.Action == ActionReplaceBG && !req.UsesColorBackground() && len(req.Background) == 0 {
		return nil, ErrMissingBackground
	}

	var cacheKey string
	if p.cache != nil {
		cacheKey = req.CacheKey()
		if cached := p.lookup(ctx, cacheKey); cached != nil {
			return cached, nil
		}
	}

	// 并发控制
	select {
	case p.semaphore <- struct{}{}:
		defer func() { <-p.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	img, err := DecodeImage(req.Image)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	var bg *gocv.Mat
	if req.Action == ActionReplaceBG && !req.UsesColorBackground() {
		decoded, err := DecodeImage(req.Background)
		if err != nil {
			return nil, fmt.Errorf("background: %w", err)
		}
		defer decoded.Close()
		bg = &decoded
	}

	utils.Logger.Info("processing image",
		zap.String("action", req.Action),
		zap.Int("width", img.Cols()),
		zap.Int("height", img.Rows()))

	start := time.Now()
	out, err := p.run(ctx, req, &img, bg)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	encoded, err := EncodePNG(&out)
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{
		Action:      req.Action,
		ImageBase64: base64.StdEncoding.EncodeToString(encoded),
		Elapsed:     elapsed,
		Width:       out.Cols(),
		Height:      out.Rows(),
	}

	utils.Logger.Info("image processed successfully",
		zap.String("action", req.Action),
		zap.Duration("duration", elapsed),
		zap.Int("encoded_bytes", len(encoded)))

	if p.cache != nil {
		if err := p.cache.SetResult(ctx, cacheKey, result); err != nil {
			utils.Logger.Warn("failed to set cache", zap.Error(err))
		}
	}

	return result, nil
}

func (p *Processor) lookup(ctx context.Context, key string) *ProcessResult {
	cached, err := p.cache.GetResult(ctx, key)
	if err != nil {
		utils.Logger.Warn("failed to get cache", zap.Error(err))
		return nil
	}
	if cached == nil {
		return nil
	}
	utils.Logger.Info("cache hit", zap.String("cache_key", key))
	cached.Cached = true
	return cached
}

func (p *Processor) run(ctx context.Context, req *ProcessRequest, img, bg *gocv.Mat) (gocv.Mat, error) {
	switch req.Action {
	case ActionGrayscale:
		return p.filters.Grayscale(img)
	case ActionBlur:
		return p.filters.Blur(img)
	case ActionSepia:
		return p.filters.Sepia(img)
	case ActionEdgeDetection:
		return p.filters.EdgeDetection(img)
	case ActionThreshold:
		return p.filters.Threshold(img)
	case ActionFaceMesh:
		return p.FaceMesh(ctx, img)
	case ActionRemoveBG:
		return p.RemoveBackground(ctx, img)
	case ActionReplaceBG:
		if req.UsesColorBackground() {
			return p.ReplaceBackgroundColor(ctx, img, req.BackgroundColor)
		}
		return p.ReplaceBackgroundImage(ctx, img, bg)
	}
	return gocv.NewMat(), fmt.Errorf("%w: %s", ErrUnknownAction, req.Action)
}

// FaceMesh 绘制人脸网格，没有检测到人脸时返回原图副本
func (p *Processor) FaceMesh(ctx context.Context, img *gocv.Mat) (gocv.Mat, error) {
	if p.landmarker == nil {
		return gocv.NewMat(), errors.New("face mesh detector is not configured")
	}

	set, err := p.landmarker.Detect(ctx, img)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("detect face landmarks: %w", err)
	}
	if set == nil {
		utils.Logger.Debug("no face detected")
	}
	return p.drawer.Draw(img, set)
}

// Matte 分割并细化得到 alpha 蒙版
func (p *Processor) Matte(ctx context.Context, img *gocv.Mat) (AlphaMatte, error) {
	if err := validateImage(img); err != nil {
		return AlphaMatte{}, err
	}

	prob, err := p.masks.Predict(ctx, img)
	if err != nil {
		return AlphaMatte{}, fmt.Errorf("predict mask: %w", err)
	}
	defer prob.Close()

	return p.refiner.Refine(prob)
}

// RemoveBackground 输出带透明通道的 BGRA 图像
func (p *Processor) RemoveBackground(ctx context.Context, img *gocv.Mat) (gocv.Mat, error) {
	matte, err := p.Matte(ctx, img)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer matte.Close()

	return p.compositor.Transparent(img, matte)
}

// ReplaceBackgroundColor 以纯色背景替换
func (p *Processor) ReplaceBackgroundColor(ctx context.Context, img *gocv.Mat, hex string) (gocv.Mat, error) {
	if err := validateImage(img); err != nil {
		return gocv.NewMat(), err
	}

	bg, err := p.backgrounds.SolidBackground(hex, img.Cols(), img.Rows())
	if err != nil {
		return gocv.NewMat(), err
	}
	defer bg.Close()

	return p.composite(ctx, img, &bg)
}

// ReplaceBackgroundImage 以用户背景图替换，背景先缩放到前景尺寸
func (p *Processor) ReplaceBackgroundImage(ctx context.Context, img, background *gocv.Mat) (gocv.Mat, error) {
	if err := validateImage(img); err != nil {
		return gocv.NewMat(), err
	}

	bg, err := p.backgrounds.FitBackground(background, img.Cols(), img.Rows())
	if err != nil {
		return gocv.NewMat(), err
	}
	defer bg.Close()

	return p.composite(ctx, img, &bg)
}

func (p *Processor) composite(ctx context.Context, img, bg *gocv.Mat) (gocv.Mat, error) {
	matte, err := p.Matte(ctx, img)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer matte.Close()

	return p.compositor.Blend(img, bg, matte)
}

// Close 释放模型实例
func (p *Processor) Close() error {
	var errs []error
	if p.masks != nil {
		errs = append(errs, p.masks.Close())
	}
	if p.landmarker != nil {
		errs = append(errs, p.landmarker.Close())
	}
	return errors.Join(errs...)
}

// DecodeImage 把上传的字节解码为 BGR 图像
func DecodeImage(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), ErrDecode
	}

	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), ErrDecode
	}
	return img, nil
}

// EncodePNG 无损编码，支持 alpha 通道
func EncodePNG(img *gocv.Mat) ([]byte, error) {
	if img.Empty() {
		return nil, fmt.Errorf("%w: empty output", ErrEncode)
	}

	buf, err := gocv.IMEncode(gocv.PNGFileExt, *img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	defer buf.Close()

	return buf.GetBytes(), nil
}
