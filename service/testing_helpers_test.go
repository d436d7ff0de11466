package service

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// solidImage 生成纯色 BGR 测试图
func solidImage(rows, cols int, b, g, r uint8) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(b), float64(g), float64(r), 0), rows, cols, gocv.MatTypeCV8UC3)
}

func uniformMatte(rows, cols int, value float32) AlphaMatte {
	return AlphaMatte{mat: gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(value), 0, 0, 0), rows, cols, gocv.MatTypeCV32FC1)}
}

func pixel(m gocv.Mat, x, y int) []uint8 {
	return []uint8(m.GetVecbAt(y, x))
}

func encodePNG(t *testing.T, m gocv.Mat) []byte {
	t.Helper()
	data, err := EncodePNG(&m)
	require.NoError(t, err)
	return data
}
