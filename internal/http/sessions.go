package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"invoicedesk/internal/domain"
	"invoicedesk/internal/workflow"
)

// sessionFrom loads the :id session or writes the error response.
func (s *Server) sessionFrom(c *gin.Context) (*workflow.Session, bool) {
	sess, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return sess, true
}

// @Summary Start drafting session
// @Tags sessions
// @Produce json
// @Success 201 {object} workflow.Snapshot
// @Router /sessions [post]
func (s *Server) createSession(c *gin.Context) {
	sess := s.sessions.New()
	c.JSON(http.StatusCreated, sess.View())
}

// @Summary List session ids
// @Tags sessions
// @Produce json
// @Success 200 {array} string
// @Router /sessions [get]
func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, s.sessions.IDs())
}

// @Summary Get session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} workflow.Snapshot
// @Failure 404 {object} map[string]string
// @Router /sessions/{id} [get]
func (s *Server) getSession(c *gin.Context) {
	sess, ok := s.sessionFrom(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

// @Summary Discard session
// @Tags sessions
// @Param id path string true "Session ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /sessions/{id} [delete]
func (s *Server) deleteSession(c *gin.Context) {
	if err := s.sessions.Delete(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type addItemReq struct {
	ProductID string `json:"product_id"`
	Text      string `json:"text"` // id, product code or exact name
}

// @Summary Add product to cart
// @Description One unit is added; scanning the same product again increments the line.
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param input body addItemReq true "Product reference"
// @Success 200 {object} workflow.Snapshot
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /sessions/{id}/items [post]
func (s *Server) addItem(c *gin.Context) {
	sess, ok := s.sessionFrom(c)
	if !ok {
		return
	}
	var req addItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	ref := strings.TrimSpace(req.Text)
	if ref == "" {
		ref = strings.TrimSpace(req.ProductID)
	}
	if ref == "" {
		writeError(c, domain.NewValidationError(map[string]string{"product_id": "product id or text is required"}))
		return
	}
	if _, err := s.scanner.Scan(c, sess, ref); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

type updateItemReq struct {
	Quantity  *int     `json:"quantity"`
	UnitPrice *float64 `json:"unit_price"`
}

// @Summary Edit cart line
// @Description Quantity 0 removes the line.
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param product_id path string true "Product ID"
// @Param input body updateItemReq true "Changes"
// @Success 200 {object} workflow.Snapshot
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /sessions/{id}/items/{product_id} [patch]
func (s *Server) updateItem(c *gin.Context) {
	sess, ok := s.sessionFrom(c)
	if !ok {
		return
	}
	var req updateItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	productID := c.Param("product_id")
	if req.UnitPrice != nil {
		if err := sess.SetUnitPrice(productID, *req.UnitPrice); err != nil {
			writeError(c, err)
			return
		}
	}
	if req.Quantity != nil {
		if err := sess.SetQuantity(productID, *req.Quantity); err != nil {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, sess.View())
}

// @Summary Remove cart line
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Param product_id path string true "Product ID"
// @Success 200 {object} workflow.Snapshot
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /sessions/{id}/items/{product_id} [delete]
func (s *Server) removeItem(c *gin.Context) {
	sess, ok := s.sessionFrom(c)
	if !ok {
		return
	}
	if err := sess.RemoveItem(c.Param("product_id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

// @Summary Set buyer details
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param input body domain.BuyerDetails true "Buyer"
// @Success 200 {object} workflow.Snapshot
// @Failure 409 {object} map[string]string
// @Router /sessions/{id}/buyer [put]
func (s *Server) setBuyer(c *gin.Context) {
	sess, ok := s.sessionFrom(c)
	if !ok {
		return
	}
	var req domain.BuyerDetails
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := sess.SetBuyer(req); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

type paymentMethodReq struct {
	Method domain.PaymentMethod `json:"method"`
}

// @Summary Set payment method
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param input body paymentMethodReq true "cash, card or upi"
// @Success 200 {object} workflow.Snapshot
// @Failure 400 {object} map[string]any
// @Failure 409 {object} map[string]string
// @Router /sessions/{id}/payment-method [put]
func (s *Server) setPaymentMethod(c *gin.Context) {
	sess, ok := s.sessionFrom(c)
	if !ok {
		return
	}
	var req paymentMethodReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := sess.SetPaymentMethod(req.Method); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

type submitResp struct {
	Invoice        *domain.Invoice `json:"invoice"`
	Notice         string          `json:"notice"`
	DismissAfterMS int64           `json:"dismiss_after_ms"`
}

// @Summary Generate invoice
// @Description Validates, persists, updates stock and prints. A failed step
// @Description leaves the session in state error; submitting again resumes it.
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 201 {object} submitResp
// @Failure 400 {object} map[string]any
// @Failure 409 {object} map[string]string
// @Failure 503 {object} map[string]any
// @Router /sessions/{id}/submit [post]
func (s *Server) submitSession(c *gin.Context) {
	sess, ok := s.sessionFrom(c)
	if !ok {
		return
	}
	// начатый шаг останавливает только исчерпание повторов, не обрыв соединения
	res, err := s.flow.Submit(context.WithoutCancel(c.Request.Context()), sess)
	if err != nil {
		status := mapErrorToStatus(err)
		body := gin.H{"error": err.Error(), "session": sess.View()}
		if ve, ok := domain.AsValidationError(err); ok {
			body["fields"] = ve.Fields
		}
		var stepErr *workflow.StepError
		if errors.As(err, &stepErr) {
			body["step"] = stepErr.Step
		}
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusCreated, submitResp{
		Invoice:        res.Invoice,
		Notice:         res.Notice,
		DismissAfterMS: res.DismissAfter.Milliseconds(),
	})
}
