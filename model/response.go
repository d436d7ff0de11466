package model

// ProcessResponse 处理成功的响应
type ProcessResponse struct {
	Filename      string `json:"filename"`
	Action        string `json:"action"`
	ImageBase64   string `json:"image_base64"`
	ExecutionTime string `json:"execution_time"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Cached        bool   `json:"cached"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}
