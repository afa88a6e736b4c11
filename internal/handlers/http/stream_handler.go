package http

import (
	"net/http"

	"livestream/internal/core/domain"
	"livestream/internal/core/ports"
	"livestream/internal/infrastructure/middleware"
	"livestream/pkg/errors"

	"github.com/gin-gonic/gin"
)

var _ ports.HTTPHandler = (*StreamHandler)(nil)

type StreamHandler struct {
	streamService ports.StreamService
}

func NewStreamHandler(streamService ports.StreamService) *StreamHandler {
	return &StreamHandler{
		streamService: streamService,
	}
}

func (h *StreamHandler) SetupRoutes(api *gin.RouterGroup) {
	api.POST("/streams", middleware.RequireUser(), h.CreateStream)
	api.GET("/streams", h.ListStreams)
	api.GET("/streams/subscriptions", middleware.RequireUser(), h.ListSubscribedStreams)
	api.GET("/streams/:id", h.GetStream)
	api.PATCH("/streams/:id", h.UpdateStream)
	api.POST("/streams/:id/end", middleware.RequireUser(), h.EndStream)
	api.POST("/streams/:id/view", h.RecordView)
	api.DELETE("/streams/:id", h.DeleteStream)

	api.POST("/media/stop", h.StopStream)
}

func (h *StreamHandler) CreateStream(c *gin.Context) {
	var attrs domain.StreamAttributes
	if err := c.ShouldBindJSON(&attrs); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	stream, err := h.streamService.CreateStream(c.Request.Context(), middleware.CallerID(c), attrs)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, stream)
}

func (h *StreamHandler) GetStream(c *gin.Context) {
	stream, err := h.streamService.GetStreamByID(c.Request.Context(), domain.StreamID(c.Param("id")))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, stream)
}

func (h *StreamHandler) ListStreams(c *gin.Context) {
	var filters domain.StreamFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		c.Error(errors.NewInvalidInputError("invalid query parameters"))
		return
	}

	streams, err := h.streamService.ListStreams(c.Request.Context(), middleware.CallerID(c), filters)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"streams": streams,
	})
}

func (h *StreamHandler) ListSubscribedStreams(c *gin.Context) {
	streams, err := h.streamService.ListSubscribedStreams(c.Request.Context(), middleware.CallerID(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"streams": streams,
	})
}

func (h *StreamHandler) UpdateStream(c *gin.Context) {
	var updates domain.StreamUpdates
	if err := c.ShouldBindJSON(&updates); err != nil || len(updates) == 0 {
		c.Error(errors.NewInvalidInputError("request body must be a non-empty object"))
		return
	}

	stream, err := h.streamService.UpdateStream(c.Request.Context(), domain.StreamID(c.Param("id")), updates)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, stream)
}

func (h *StreamHandler) EndStream(c *gin.Context) {
	result, err := h.streamService.EndStream(c.Request.Context(), middleware.CallerID(c), domain.StreamID(c.Param("id")))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result": result,
	})
}

func (h *StreamHandler) RecordView(c *gin.Context) {
	if err := h.streamService.RecordView(c.Request.Context(), domain.StreamID(c.Param("id")), middleware.CallerID(c)); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *StreamHandler) DeleteStream(c *gin.Context) {
	if err := h.streamService.DeleteStream(c.Request.Context(), domain.StreamID(c.Param("id"))); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

type stopStreamRequest struct {
	AppName     string `json:"app_name" binding:"required,max=100"`
	AppInstance string `json:"app_instance" binding:"required,max=100"`
	StreamID    string `json:"stream_id" binding:"required,max=100"`
}

func (h *StreamHandler) StopStream(c *gin.Context) {
	var req stopStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("app_name, app_instance and stream_id are required"))
		return
	}

	err := h.streamService.StopStream(c.Request.Context(), req.AppName, req.AppInstance, domain.StreamID(req.StreamID))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "stopped",
	})
}
