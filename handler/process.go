package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/TIANLI0/MatteKit/config"
	"github.com/TIANLI0/MatteKit/middleware"
	"github.com/TIANLI0/MatteKit/model"
	"github.com/TIANLI0/MatteKit/service"
	"github.com/TIANLI0/MatteKit/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const internalErrorDetail = "Internal Server Error during image processing."

// ImageProcessor 处理接口依赖的处理服务
type ImageProcessor interface {
	Process(ctx context.Context, req *service.ProcessRequest) (*service.ProcessResult, error)
}

type ProcessHandler struct {
	cfg       *config.Config
	processor ImageProcessor
}

func NewProcessHandler(cfg *config.Config, processor ImageProcessor) *ProcessHandler {
	return &ProcessHandler{
		cfg:       cfg,
		processor: processor,
	}
}

// ProcessImage 处理 multipart 上传并返回 base64 编码的 PNG
func (h *ProcessHandler) ProcessImage(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		h.badRequest(c, "file is required")
		return
	}

	action := c.PostForm("action")
	if action == "" {
		h.badRequest(c, "action is required")
		return
	}

	imageData, err := h.readUpload(file)
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}

	req := &service.ProcessRequest{
		Action:          action,
		Image:           imageData,
		BackgroundMode:  c.PostForm("bg_mode"),
		BackgroundColor: c.PostForm("bg_color_hex"),
	}

	bgFile, err := c.FormFile("bg_file")
	switch {
	case err == nil:
		req.Background, err = h.readUpload(bgFile)
		if err != nil {
			h.badRequest(c, err.Error())
			return
		}
	case !errors.Is(err, http.ErrMissingFile):
		h.badRequest(c, "invalid background upload")
		return
	}

	utils.Logger.Info("file uploaded",
		zap.String("request_id", c.GetString(middleware.RequestIDKey)),
		zap.String("filename", file.Filename),
		zap.String("action", action),
		zap.Int64("size", file.Size),
		zap.String("bg_mode", req.BackgroundMode))

	result, err := h.processor.Process(c.Request.Context(), req)
	if err != nil {
		h.processError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.ProcessResponse{
		Filename:      file.Filename,
		Action:        action,
		ImageBase64:   result.ImageBase64,
		ExecutionTime: result.ExecutionTime(),
		Width:         result.Width,
		Height:        result.Height,
		Cached:        result.Cached,
	})
}

func (h *ProcessHandler) readUpload(file *multipart.FileHeader) ([]byte, error) {
	if h.cfg.Upload.MaxSize > 0 && file.Size > h.cfg.Upload.MaxSize {
		return nil, fmt.Errorf("file %s exceeds the size limit (%d MB)", file.Filename, h.cfg.Upload.MaxSize/(1024*1024))
	}

	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("could not read upload %s", file.Filename)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("could not read upload %s", file.Filename)
	}
	return data, nil
}

func (h *ProcessHandler) processError(c *gin.Context, err error) {
	if service.IsClientError(err) {
		utils.Logger.Warn("rejected image request",
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.Error(err))
		h.badRequest(c, err.Error())
		return
	}

	utils.Logger.Error("failed to process image",
		zap.String("request_id", c.GetString(middleware.RequestIDKey)),
		zap.Error(err))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, model.ErrorResponse{Detail: internalErrorDetail})
}

func (h *ProcessHandler) badRequest(c *gin.Context, detail string) {
	c.JSON(http.StatusBadRequest, model.ErrorResponse{Detail: detail})
}
