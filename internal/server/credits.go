package server

import (
	"net/http"

	ledgerdomain "github.com/coverview/creditd/internal/ledger/domain"
	"github.com/gin-gonic/gin"
)

type creditsResponse struct {
	Credits int64 `json:"credits"`
}

func (s *Server) GetCredits(c *gin.Context) {
	balance, err := s.ledgerSvc.Balance(c.Request.Context(), c.GetString(contextUserIDKey))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, creditsResponse{Credits: balance})
}

func (s *Server) ListTransactions(c *gin.Context) {
	req := ledgerdomain.ListTransactionsRequest{
		UserID: c.GetString(contextUserIDKey),
	}
	if err := c.ShouldBindQuery(&req.Pagination); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.ledgerSvc.ListTransactions(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
