package handler

import (
	"net/http"

	"github.com/TIANLI0/MatteKit/model"
	"github.com/gin-gonic/gin"
)

const serviceName = "MatteKit Image Processor"

// BuildInfo 构建时注入的版本信息
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
	GitBranch string `json:"git_branch"`
}

type SystemHandler struct {
	build BuildInfo
}

func NewSystemHandler(build BuildInfo) *SystemHandler {
	return &SystemHandler{build: build}
}

// Health 静态健康检查
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, model.HealthResponse{
		Status:  "active",
		Service: serviceName,
		Version: h.build.Version,
	})
}

func (h *SystemHandler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, h.build)
}
