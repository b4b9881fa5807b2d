package server

import (
	"net/http"

	billingdomain "github.com/coverview/creditd/internal/billing/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) OptimizeTitle(c *gin.Context) {
	var req billingdomain.OptimizeTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if req.RequestID == "" {
		req.RequestID = c.GetHeader("Idempotency-Key")
	}

	resp, err := s.billingSvc.OptimizeTitle(c.Request.Context(), c.GetString(contextUserIDKey), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GenerateImage(c *gin.Context) {
	var req billingdomain.GenerateImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if req.RequestID == "" {
		req.RequestID = c.GetHeader("Idempotency-Key")
	}

	resp, err := s.billingSvc.GenerateImage(c.Request.Context(), c.GetString(contextUserIDKey), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
