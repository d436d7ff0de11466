package service

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/TIANLI0/MatteKit/config"
	"github.com/TIANLI0/MatteKit/model"
	"github.com/TIANLI0/MatteKit/utils"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// 468 点基础网格，refine 模型额外输出 10 个虹膜点
const (
	baseLandmarkCount    = 468
	refinedLandmarkCount = 478
)

// FaceLandmarker 检测单张人脸的关键点，没有人脸时返回 nil, nil
type FaceLandmarker interface {
	Detect(ctx context.Context, img *gocv.Mat) (*model.LandmarkSet, error)
	Close() error
}

type faceMeshInstance struct {
	cascade gocv.CascadeClassifier
	net     gocv.Net
}

func (f *faceMeshInstance) Close() error {
	err := f.cascade.Close()
	if netErr := f.net.Close(); err == nil {
		err = netErr
	}
	return err
}

// DNNFaceLandmarker 级联分类器定位人脸，关键点网络在人脸裁剪区域上推理
type DNNFaceLandmarker struct {
	pool        *InstancePool[*faceMeshInstance]
	inputSize   int
	cropPadding float64
}

func NewDNNFaceLandmarker(cfg *config.FaceMeshConfig) (*DNNFaceLandmarker, error) {
	if cfg.InputSize <= 0 {
		return nil, fmt.Errorf("invalid face mesh input size %d", cfg.InputSize)
	}

	pool, err := NewInstancePool(cfg.PoolSize, func() (*faceMeshInstance, error) {
		cascade := gocv.NewCascadeClassifier()
		if !cascade.Load(cfg.CascadePath) {
			_ = cascade.Close()
			return nil, fmt.Errorf("failed to load face cascade %s", cfg.CascadePath)
		}

		net := gocv.ReadNet(cfg.ModelPath, "")
		if net.Empty() {
			_ = cascade.Close()
			_ = net.Close()
			return nil, fmt.Errorf("failed to load face landmark model %s", cfg.ModelPath)
		}
		return &faceMeshInstance{cascade: cascade, net: net}, nil
	})
	if err != nil {
		return nil, err
	}

	utils.Logger.Info("face mesh model loaded",
		zap.String("model_path", cfg.ModelPath),
		zap.String("cascade_path", cfg.CascadePath),
		zap.Int("pool_size", pool.Size()))

	return &DNNFaceLandmarker{
		pool:        pool,
		inputSize:   cfg.InputSize,
		cropPadding: cfg.CropPadding,
	}, nil
}

// Detect 只处理面积最大的一张人脸
func (d *DNNFaceLandmarker) Detect(ctx context.Context, img *gocv.Mat) (*model.LandmarkSet, error) {
	if err := validateImage(img); err != nil {
		return nil, err
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(*img, &gray, gocv.ColorBGRToGray)
	gocv.EqualizeHist(gray, &gray)

	var points []model.Landmark
	err := d.pool.With(ctx, func(inst *faceMeshInstance) error {
		faces := inst.cascade.DetectMultiScale(gray)
		if len(faces) == 0 {
			return nil
		}

		crop := padRect(largestRect(faces), d.cropPadding, image.Rect(0, 0, img.Cols(), img.Rows()))
		region := img.Region(crop)
		defer region.Close()

		size := image.Point{X: d.inputSize, Y: d.inputSize}
		blob := gocv.BlobFromImage(region, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
		defer blob.Close()

		inst.net.SetInput(blob, "")
		out := inst.net.Forward("")
		defer out.Close()

		values, err := out.DataPtrFloat32()
		if err != nil {
			return fmt.Errorf("read landmark output: %w", err)
		}
		points, err = landmarksFromOutput(values, crop, d.inputSize)
		return err
	})
	if err != nil {
		return nil, err
	}
	if points == nil {
		return nil, nil
	}

	return NewLandmarkSet(points), nil
}

func (d *DNNFaceLandmarker) Close() error {
	return d.pool.Close()
}

// NewLandmarkSet 为关键点补全网格与轮廓拓扑
func NewLandmarkSet(points []model.Landmark) *model.LandmarkSet {
	topologies := contourTopologies()
	topologies[model.TopologyTesselation] = tesselation(points)
	return &model.LandmarkSet{Points: points, Topologies: topologies}
}

// landmarksFromOutput 网络输出为输入尺寸下的 (x, y, z)，映射回原图坐标
func landmarksFromOutput(values []float32, crop image.Rectangle, inputSize int) ([]model.Landmark, error) {
	count := len(values) / 3
	if len(values)%3 != 0 || (count != baseLandmarkCount && count != refinedLandmarkCount) {
		return nil, fmt.Errorf("unexpected landmark output length %d", len(values))
	}

	sx := float64(crop.Dx()) / float64(inputSize)
	sy := float64(crop.Dy()) / float64(inputSize)
	points := make([]model.Landmark, count)
	for i := range points {
		points[i] = model.Landmark{
			X: float64(crop.Min.X) + float64(values[i*3])*sx,
			Y: float64(crop.Min.Y) + float64(values[i*3+1])*sy,
			Z: float64(values[i*3+2]) * sx,
		}
	}
	return points, nil
}

func largestRect(rects []image.Rectangle) image.Rectangle {
	var best image.Rectangle
	for _, r := range rects {
		if r.Dx()*r.Dy() > best.Dx()*best.Dy() {
			best = r
		}
	}
	return best
}

// padRect 按比例向四周扩展并裁剪到图像范围内
func padRect(r image.Rectangle, ratio float64, bounds image.Rectangle) image.Rectangle {
	px := int(float64(r.Dx()) * ratio)
	py := int(float64(r.Dy()) * ratio)
	return image.Rect(r.Min.X-px, r.Min.Y-py, r.Max.X+px, r.Max.Y+py).Intersect(bounds)
}

// 绘制样式
var (
	tesselationStyle = drawingStyle{color: color.RGBA{R: 192, G: 192, B: 192}, thickness: 1}
	contourStyles    = map[string]drawingStyle{
		model.TopologyFaceOval:     {color: color.RGBA{R: 224, G: 224, B: 224}, thickness: 2},
		model.TopologyLips:         {color: color.RGBA{R: 224, G: 224, B: 224}, thickness: 2},
		model.TopologyLeftEye:      {color: color.RGBA{R: 48, G: 255, B: 48}, thickness: 2},
		model.TopologyLeftEyebrow:  {color: color.RGBA{R: 48, G: 255, B: 48}, thickness: 2},
		model.TopologyRightEye:     {color: color.RGBA{R: 255, G: 48, B: 48}, thickness: 2},
		model.TopologyRightEyebrow: {color: color.RGBA{R: 255, G: 48, B: 48}, thickness: 2},
	}
	contourOrder = []string{
		model.TopologyFaceOval,
		model.TopologyLips,
		model.TopologyLeftEye,
		model.TopologyLeftEyebrow,
		model.TopologyRightEye,
		model.TopologyRightEyebrow,
	}
)

type drawingStyle struct {
	color     color.RGBA
	thickness int
}

// FaceMeshDrawer 在图像副本上绘制网格与轮廓
type FaceMeshDrawer struct{}

func NewFaceMeshDrawer() *FaceMeshDrawer {
	return &FaceMeshDrawer{}
}

// Draw 先画三角网格，再画加粗轮廓；set 为 nil 时返回原图副本
func (fd *FaceMeshDrawer) Draw(img *gocv.Mat, set *model.LandmarkSet) (gocv.Mat, error) {
	if err := validateImage(img); err != nil {
		return gocv.NewMat(), err
	}

	annotated := img.Clone()
	if set == nil || len(set.Points) == 0 {
		return annotated, nil
	}

	fd.drawConnections(&annotated, set, set.Topologies[model.TopologyTesselation], tesselationStyle)
	for _, name := range contourOrder {
		fd.drawConnections(&annotated, set, set.Topologies[name], contourStyles[name])
	}
	return annotated, nil
}

func (fd *FaceMeshDrawer) drawConnections(img *gocv.Mat, set *model.LandmarkSet, conns []model.Connection, style drawingStyle) {
	c := style.color
	c.A = 255
	for _, conn := range conns {
		if !set.Valid(conn) {
			continue
		}
		from := set.Points[conn.From]
		to := set.Points[conn.To]
		gocv.Line(img,
			image.Point{X: int(from.X + 0.5), Y: int(from.Y + 0.5)},
			image.Point{X: int(to.X + 0.5), Y: int(to.Y + 0.5)},
			c, style.thickness)
	}
}
