package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/domain/shared"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/logger"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the status derived from code
func (h *BaseHandler) Error(c *gin.Context, code, message string) {
	c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponse(code, message))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, dto.ErrCodeBadRequest, message)
}

// HandleError converts a registry error to an HTTP response. Infrastructure
// failures are logged with their cause and answered with a safe message.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if shared.IsInfrastructure(err) {
		logger.GetGinLogger(c).Error("Tenant store failure", zap.Error(err))
	}
	_ = c.Error(err)
	status, resp := dto.NewDomainErrorResponse(err)
	c.JSON(status, resp)
}
