package service

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestFilterBank_OutputShapes(t *testing.T) {
	fb := NewFilterBank(0)
	img := solidImage(12, 16, 40, 80, 120)
	defer img.Close()

	tests := []struct {
		name     string
		apply    func(*gocv.Mat) (gocv.Mat, error)
		channels int
	}{
		{"grayscale", fb.Grayscale, 1},
		{"blur", fb.Blur, 3},
		{"sepia", fb.Sepia, 3},
		{"edge_detection", fb.EdgeDetection, 3},
		{"threshold", fb.Threshold, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.apply(&img)
			require.NoError(t, err)
			defer out.Close()

			require.Equal(t, 16, out.Cols())
			require.Equal(t, 12, out.Rows())
			require.Equal(t, tt.channels, out.Channels())
		})
	}
}

func TestFilterBank_InvalidInput(t *testing.T) {
	fb := NewFilterBank(DefaultBlurKernel)
	empty := gocv.NewMat()
	defer empty.Close()

	for _, apply := range []func(*gocv.Mat) (gocv.Mat, error){fb.Grayscale, fb.Blur, fb.Sepia, fb.EdgeDetection, fb.Threshold} {
		_, err := apply(&empty)
		require.ErrorIs(t, err, ErrInvalidImage)
	}

	gray := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8U)
	defer gray.Close()
	_, err := fb.Sepia(&gray)
	require.ErrorIs(t, err, ErrInvalidImage)
}

func TestFilterBank_Sepia(t *testing.T) {
	fb := NewFilterBank(DefaultBlurKernel)

	white := solidImage(2, 2, 255, 255, 255)
	defer white.Close()
	out, err := fb.Sepia(&white)
	require.NoError(t, err)
	defer out.Close()
	// 每行系数之和：R 1.351，G 1.203，B 0.937
	require.Equal(t, []uint8{239, 255, 255}, pixel(out, 0, 0))

	black := solidImage(2, 2, 0, 0, 0)
	defer black.Close()
	dark, err := fb.Sepia(&black)
	require.NoError(t, err)
	defer dark.Close()
	require.Equal(t, []uint8{0, 0, 0}, pixel(dark, 1, 1))
}

func TestFilterBank_ThresholdIsBinary(t *testing.T) {
	img := solidImage(10, 10, 0, 0, 0)
	defer img.Close()
	for y := 0; y < 10; y++ {
		for x := 5; x < 10; x++ {
			img.SetUCharAt(y, x*3, 200)
			img.SetUCharAt(y, x*3+1, 200)
			img.SetUCharAt(y, x*3+2, 200)
		}
	}

	out, err := NewFilterBank(DefaultBlurKernel).Threshold(&img)
	require.NoError(t, err)
	defer out.Close()

	require.Equal(t, []uint8{0, 0, 0}, pixel(out, 1, 1))
	require.Equal(t, []uint8{255, 255, 255}, pixel(out, 8, 1))
}

func TestOddKernel(t *testing.T) {
	require.Equal(t, 1, OddKernel(0))
	require.Equal(t, 1, OddKernel(-4))
	require.Equal(t, 15, OddKernel(15))
	require.Equal(t, 17, OddKernel(16))
}
