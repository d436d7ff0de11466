package service

import "errors"

// 处理流水线的错误分类，调用方用 errors.Is 判断
var (
	ErrDecode            = errors.New("could not decode image data")
	ErrInvalidImage      = errors.New("input image is empty or invalid")
	ErrUnknownAction     = errors.New("unknown action")
	ErrMissingBackground = errors.New("background file is required for image mode")
	ErrDimensionMismatch = errors.New("image dimensions do not match")
	ErrEncode            = errors.New("failed to encode processed image")
)

// IsClientError 判断错误是否由请求内容导致（对应 400）
func IsClientError(err error) bool {
	return errors.Is(err, ErrDecode) ||
		errors.Is(err, ErrInvalidImage) ||
		errors.Is(err, ErrUnknownAction) ||
		errors.Is(err, ErrMissingBackground)
}
