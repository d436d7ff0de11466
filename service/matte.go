package service

import (
	"fmt"

	"gocv.io/x/gocv"
)

// ProbabilityMask 模型输出的前景概率图，CV_32FC1，取值 [0,1]
type ProbabilityMask struct {
	Mat gocv.Mat
}

// NewProbabilityMask 用给定行优先数据构造概率图
func NewProbabilityMask(rows, cols int, values []float32) (ProbabilityMask, error) {
	if rows <= 0 || cols <= 0 || len(values) != rows*cols {
		return ProbabilityMask{}, fmt.Errorf("%w: mask %dx%d with %d values", ErrInvalidImage, cols, rows, len(values))
	}
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32FC1)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			m.SetFloatAt(y, x, values[y*cols+x])
		}
	}
	return ProbabilityMask{Mat: m}, nil
}

// UniformProbabilityMask 构造所有像素取同一概率的蒙版
func UniformProbabilityMask(rows, cols int, value float32) ProbabilityMask {
	return ProbabilityMask{
		Mat: gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(value), 0, 0, 0), rows, cols, gocv.MatTypeCV32FC1),
	}
}

func (m ProbabilityMask) Rows() int    { return m.Mat.Rows() }
func (m ProbabilityMask) Cols() int    { return m.Mat.Cols() }
func (m ProbabilityMask) Empty() bool  { return m.Mat.Empty() }
func (m ProbabilityMask) Close() error { return m.Mat.Close() }

// AlphaMatte 经过闭运算与羽化后的最终混合权重，CV_32FC1，取值 [0,1]
// 只能由 MaskRefiner 生成
type AlphaMatte struct {
	mat gocv.Mat
}

func (a AlphaMatte) Rows() int    { return a.mat.Rows() }
func (a AlphaMatte) Cols() int    { return a.mat.Cols() }
func (a AlphaMatte) Empty() bool  { return a.mat.Empty() }
func (a AlphaMatte) Close() error { return a.mat.Close() }

// At 返回 (x, y) 处的混合权重
func (a AlphaMatte) At(x, y int) float32 {
	return a.mat.GetFloatAt(y, x)
}

// values 返回连续存储的权重数据
func (a AlphaMatte) values() ([]float32, error) {
	if !a.mat.IsContinuous() {
		return nil, fmt.Errorf("alpha matte is not continuous")
	}
	return a.mat.DataPtrFloat32()
}
