package service

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
	}{
		{"#00FF00", color.RGBA{G: 255, A: 255}},
		{"ff8000", color.RGBA{R: 255, G: 128, A: 255}},
		{" #0000ff ", color.RGBA{B: 255, A: 255}},
		{"zzzzzz", white},
		{"#12", white},
		{"#1234567", white},
		{"", white},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, ParseHexColor(tt.in))
		})
	}
}

func TestBackgroundPreparer_SolidBackground(t *testing.T) {
	bp := NewBackgroundPreparer()

	bg, err := bp.SolidBackground("#FF0000", 7, 5)
	require.NoError(t, err)
	defer bg.Close()

	require.Equal(t, 7, bg.Cols())
	require.Equal(t, 5, bg.Rows())
	require.Equal(t, []uint8{0, 0, 255}, pixel(bg, 3, 2))

	_, err = bp.SolidBackground("#FF0000", 0, 5)
	require.ErrorIs(t, err, ErrInvalidImage)
}

func TestBackgroundPreparer_FitBackground(t *testing.T) {
	bp := NewBackgroundPreparer()

	src := solidImage(10, 20, 1, 2, 3)
	defer src.Close()

	same, err := bp.FitBackground(&src, 20, 10)
	require.NoError(t, err)
	defer same.Close()
	require.Equal(t, []uint8{1, 2, 3}, pixel(same, 0, 0))

	resized, err := bp.FitBackground(&src, 33, 17)
	require.NoError(t, err)
	defer resized.Close()
	require.Equal(t, 33, resized.Cols())
	require.Equal(t, 17, resized.Rows())
	require.Equal(t, gocv.MatTypeCV8UC3, resized.Type())

	gray := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(90, 0, 0, 0), 4, 4, gocv.MatTypeCV8U)
	defer gray.Close()
	fromGray, err := bp.FitBackground(&gray, 4, 4)
	require.NoError(t, err)
	defer fromGray.Close()
	require.Equal(t, []uint8{90, 90, 90}, pixel(fromGray, 1, 1))
}

func TestBackgroundPreparer_MissingBackground(t *testing.T) {
	bp := NewBackgroundPreparer()

	_, err := bp.FitBackground(nil, 4, 4)
	require.ErrorIs(t, err, ErrMissingBackground)

	empty := gocv.NewMat()
	defer empty.Close()
	_, err = bp.FitBackground(&empty, 4, 4)
	require.ErrorIs(t, err, ErrMissingBackground)
}
