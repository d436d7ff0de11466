package service

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/TIANLI0/MatteKit/config"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestNewMaskSource(t *testing.T) {
	missing := &config.SegmentationConfig{Backend: "dnn", ModelPath: filepath.Join(t.TempDir(), "none.onnx")}
	src, err := NewMaskSource(missing)
	require.NoError(t, err)
	require.IsType(t, &GrabCutSegmenter{}, src)

	src, err = NewMaskSource(&config.SegmentationConfig{Backend: "grabcut"})
	require.NoError(t, err)
	require.IsType(t, &GrabCutSegmenter{}, src)

	_, err = NewMaskSource(&config.SegmentationConfig{Backend: "u2net"})
	require.Error(t, err)
}

func TestGrabCutSegmenter_Predict(t *testing.T) {
	img := solidImage(80, 60, 230, 230, 230)
	defer img.Close()
	gocv.Circle(&img, image.Point{X: 30, Y: 40}, 18, color.RGBA{R: 20, G: 40, B: 160, A: 255}, -1)

	seg := NewGrabCutSegmenter(&config.SegmentationConfig{GrabCutIterations: 2, GrabCutMaxSide: 40})
	mask, err := seg.Predict(context.Background(), &img)
	require.NoError(t, err)
	defer mask.Close()

	require.Equal(t, 80, mask.Rows())
	require.Equal(t, 60, mask.Cols())
	require.Equal(t, gocv.MatTypeCV32FC1, mask.Mat.Type())
	for y := 0; y < mask.Rows(); y += 7 {
		for x := 0; x < mask.Cols(); x += 7 {
			v := mask.Mat.GetFloatAt(y, x)
			require.True(t, v < 1e-6 || v > 1-1e-6, "value %v at %d,%d", v, x, y)
		}
	}
}

func TestGrabCutSegmenter_CanceledContext(t *testing.T) {
	img := solidImage(10, 10, 0, 0, 0)
	defer img.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewGrabCutSegmenter(nil).Predict(ctx, &img)
	require.ErrorIs(t, err, context.Canceled)
}
