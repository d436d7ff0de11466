package service

import (
	"context"
	"encoding/base64"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/TIANLI0/MatteKit/config"
	"github.com/TIANLI0/MatteKit/model"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// fakeMasks 返回统一概率的蒙版
type fakeMasks struct {
	value float32
	calls atomic.Int32
	err   error
}

func (f *fakeMasks) Predict(_ context.Context, img *gocv.Mat) (ProbabilityMask, error) {
	f.calls.Add(1)
	if f.err != nil {
		return ProbabilityMask{}, f.err
	}
	return UniformProbabilityMask(img.Rows(), img.Cols(), f.value), nil
}

func (f *fakeMasks) Close() error { return nil }

type fakeLandmarker struct {
	set *model.LandmarkSet
}

func (f *fakeLandmarker) Detect(context.Context, *gocv.Mat) (*model.LandmarkSet, error) {
	return f.set, nil
}

func (f *fakeLandmarker) Close() error { return nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return config.New(filepath.Join(t.TempDir(), "missing.yaml"))
}

func decodeResult(t *testing.T, result *ProcessResult) gocv.Mat {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(result.ImageBase64)
	require.NoError(t, err)
	img, err := gocv.IMDecode(data, gocv.IMReadUnchanged)
	require.NoError(t, err)
	require.False(t, img.Empty())
	return img
}

func TestProcessor_ReplaceBackgroundColor(t *testing.T) {
	p := NewProcessor(testConfig(t), &fakeMasks{value: 0}, nil, nil)

	fg := solidImage(100, 100, 0, 0, 255)
	defer fg.Close()

	result, err := p.Process(context.Background(), &ProcessRequest{
		Action:          ActionReplaceBG,
		Image:           encodePNG(t, fg),
		BackgroundMode:  BackgroundModeColor,
		BackgroundColor: "#00FF00",
	})
	require.NoError(t, err)
	require.Equal(t, 100, result.Width)
	require.Equal(t, 100, result.Height)
	require.Contains(t, result.ExecutionTime(), " ms")

	out := decodeResult(t, result)
	defer out.Close()
	require.Equal(t, 3, out.Channels())
	require.Equal(t, []uint8{0, 255, 0}, pixel(out, 50, 50))
}

func TestProcessor_ReplaceBackgroundImage(t *testing.T) {
	p := NewProcessor(testConfig(t), &fakeMasks{value: 0}, nil, nil)

	fg := solidImage(30, 40, 0, 0, 255)
	defer fg.Close()
	bg := solidImage(15, 20, 255, 0, 0)
	defer bg.Close()

	result, err := p.Process(context.Background(), &ProcessRequest{
		Action:     ActionReplaceBG,
		Image:      encodePNG(t, fg),
		Background: encodePNG(t, bg),
	})
	require.NoError(t, err)

	out := decodeResult(t, result)
	defer out.Close()
	require.Equal(t, 40, out.Cols())
	require.Equal(t, 30, out.Rows())
	require.Equal(t, []uint8{255, 0, 0}, pixel(out, 20, 15))
}

func TestProcessor_RemoveBackground(t *testing.T) {
	p := NewProcessor(testConfig(t), &fakeMasks{value: 1}, nil, nil)

	fg := solidImage(20, 20, 0, 0, 255)
	defer fg.Close()

	result, err := p.Process(context.Background(), &ProcessRequest{
		Action: ActionRemoveBG,
		Image:  encodePNG(t, fg),
	})
	require.NoError(t, err)

	out := decodeResult(t, result)
	defer out.Close()
	require.Equal(t, 4, out.Channels())
	require.Equal(t, []uint8{0, 0, 255, 255}, pixel(out, 10, 10))
}

func TestProcessor_Filters(t *testing.T) {
	p := NewProcessor(testConfig(t), &fakeMasks{}, nil, nil)

	img := solidImage(8, 8, 10, 100, 200)
	defer img.Close()
	data := encodePNG(t, img)

	for _, action := range []string{ActionGrayscale, ActionBlur, ActionSepia, ActionEdgeDetection, ActionThreshold} {
		t.Run(action, func(t *testing.T) {
			result, err := p.Process(context.Background(), &ProcessRequest{Action: action, Image: data})
			require.NoError(t, err)
			require.Equal(t, action, result.Action)
			require.Equal(t, 8, result.Width)
		})
	}
}

func TestProcessor_FaceMesh(t *testing.T) {
	img := solidImage(16, 16, 1, 1, 1)
	defer img.Close()
	req := &ProcessRequest{Action: ActionFaceMesh, Image: encodePNG(t, img)}

	// 没有人脸时原样返回
	p := NewProcessor(testConfig(t), &fakeMasks{}, &fakeLandmarker{}, nil)
	result, err := p.Process(context.Background(), req)
	require.NoError(t, err)
	out := decodeResult(t, result)
	defer out.Close()
	require.Equal(t, img.ToBytes(), out.ToBytes())

	// 未配置检测器属于服务端错误
	p = NewProcessor(testConfig(t), &fakeMasks{}, nil, nil)
	_, err = p.Process(context.Background(), req)
	require.Error(t, err)
	require.False(t, IsClientError(err))
}

func TestProcessor_RequestErrors(t *testing.T) {
	p := NewProcessor(testConfig(t), &fakeMasks{}, nil, nil)
	ctx := context.Background()

	img := solidImage(4, 4, 0, 0, 0)
	defer img.Close()
	valid := encodePNG(t, img)

	_, err := p.Process(ctx, &ProcessRequest{Action: "spin", Image: valid})
	require.ErrorIs(t, err, ErrUnknownAction)

	_, err = p.Process(ctx, &ProcessRequest{Action: ActionReplaceBG, Image: valid, BackgroundMode: BackgroundModeImage})
	require.ErrorIs(t, err, ErrMissingBackground)

	// color 模式但没有颜色值时按图片模式处理
	_, err = p.Process(ctx, &ProcessRequest{Action: ActionReplaceBG, Image: valid, BackgroundMode: BackgroundModeColor})
	require.ErrorIs(t, err, ErrMissingBackground)

	_, err = p.Process(ctx, &ProcessRequest{Action: ActionBlur, Image: []byte("not an image")})
	require.ErrorIs(t, err, ErrDecode)

	_, err = p.Process(ctx, &ProcessRequest{Action: ActionReplaceBG, Image: valid, Background: []byte("garbage")})
	require.ErrorIs(t, err, ErrDecode)

	for _, err := range []error{ErrDecode, ErrUnknownAction, ErrMissingBackground, ErrInvalidImage} {
		require.True(t, IsClientError(err))
	}
	require.False(t, IsClientError(ErrEncode))
}

func TestProcessor_SegmentationFailure(t *testing.T) {
	p := NewProcessor(testConfig(t), &fakeMasks{err: errors.New("model crashed")}, nil, nil)

	img := solidImage(4, 4, 0, 0, 0)
	defer img.Close()

	_, err := p.Process(context.Background(), &ProcessRequest{Action: ActionRemoveBG, Image: encodePNG(t, img)})
	require.Error(t, err)
	require.False(t, IsClientError(err))
}

func TestProcessor_CanceledContext(t *testing.T) {
	cfg := testConfig(t)
	cfg.Processing.MaxConcurrent = 1
	p := NewProcessor(cfg, &fakeMasks{}, nil, nil)
	p.semaphore <- struct{}{}

	img := solidImage(4, 4, 0, 0, 0)
	defer img.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Process(ctx, &ProcessRequest{Action: ActionBlur, Image: encodePNG(t, img)})
	require.ErrorIs(t, err, context.Canceled)
}

func TestProcessor_CacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Addr = mr.Addr()

	cache := NewRedisService(&cfg.Redis)
	defer cache.Close()
	require.NoError(t, cache.Ping(context.Background()))

	masks := &fakeMasks{value: 1}
	p := NewProcessor(cfg, masks, nil, cache)

	img := solidImage(12, 12, 0, 0, 255)
	defer img.Close()
	req := &ProcessRequest{Action: ActionRemoveBG, Image: encodePNG(t, img)}

	first, err := p.Process(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.Cached)

	second, err := p.Process(context.Background(), req)
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, first.ImageBase64, second.ImageBase64)
	require.Equal(t, first.Elapsed, second.Elapsed)
	require.Equal(t, int32(1), masks.calls.Load())

	// 背景参数不同则不命中
	other := *req
	other.Action = ActionReplaceBG
	other.BackgroundMode = BackgroundModeColor
	other.BackgroundColor = "#000000"
	require.NotEqual(t, req.CacheKey(), other.CacheKey())
	third, err := p.Process(context.Background(), &other)
	require.NoError(t, err)
	require.False(t, third.Cached)

	require.Len(t, mr.Keys(), 2)
}
