package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetUsage(c *gin.Context) {
	summary, err := s.usageSvc.Summary(c.Request.Context(), c.GetString(contextUserIDKey))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
