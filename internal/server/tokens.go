package server

import (
	"net/http"

	authdomain "github.com/coverview/creditd/internal/auth/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) IssueToken(c *gin.Context) {
	var req authdomain.IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	secret, err := s.authSvc.Issue(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, secret)
}

func (s *Server) RevokeToken(c *gin.Context) {
	if err := s.authSvc.Revoke(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
