package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"invoicedesk/internal/analytics"
	"invoicedesk/internal/domain"
)

const dateLayout = "2006-01-02"

// dateRange reads ?from=&to= as UTC days; to is inclusive. Both default to today.
func dateRange(c *gin.Context) (time.Time, time.Time, error) {
	today := time.Now().UTC().Format(dateLayout)
	fields := map[string]string{}
	from, err := time.Parse(dateLayout, c.DefaultQuery("from", today))
	if err != nil {
		fields["from"] = "expected YYYY-MM-DD"
	}
	to, err := time.Parse(dateLayout, c.DefaultQuery("to", today))
	if err != nil {
		fields["to"] = "expected YYYY-MM-DD"
	}
	if len(fields) > 0 {
		return time.Time{}, time.Time{}, domain.NewValidationError(fields)
	}
	return from, to.AddDate(0, 0, 1), nil
}

// @Summary List invoices by date
// @Tags invoices
// @Produce json
// @Param from query string false "First day, YYYY-MM-DD"
// @Param to query string false "Last day (inclusive), YYYY-MM-DD"
// @Success 200 {array} domain.Invoice
// @Failure 400 {object} map[string]any
// @Router /invoices [get]
func (s *Server) listInvoices(c *gin.Context) {
	from, to, err := dateRange(c)
	if err != nil {
		writeError(c, err)
		return
	}
	list, err := s.invoices.ListByDateRange(c, from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []domain.Invoice{}
	}
	c.JSON(http.StatusOK, list)
}

// @Summary Get invoice by id
// @Tags invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} domain.Invoice
// @Failure 404 {object} map[string]string
// @Router /invoices/{id} [get]
func (s *Server) getInvoice(c *gin.Context) {
	inv, err := s.invoices.Get(c, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// @Summary Printable invoice
// @Description Renders HTML and marks the invoice printed unless it is voided.
// @Tags invoices
// @Produce html
// @Param id path string true "Invoice ID"
// @Success 200 {string} string
// @Failure 404 {object} map[string]string
// @Router /invoices/{id}/print [get]
func (s *Server) printInvoice(c *gin.Context) {
	var buf bytes.Buffer
	if err := s.invoices.Print(c, c.Param("id"), &buf); err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

type voidReq struct {
	Reason string `json:"reason"`
	By     string `json:"by"`
}

// @Summary Void invoice
// @Tags invoices
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Param input body voidReq true "Reason"
// @Success 200 {object} domain.Invoice
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /invoices/{id}/void [post]
func (s *Server) voidInvoice(c *gin.Context) {
	var req voidReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	inv, err := s.invoices.Void(c, c.Param("id"), req.Reason, req.By)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

type paymentStatusReq struct {
	Status domain.PaymentStatus `json:"status"`
}

// @Summary Set payment status
// @Tags invoices
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Param input body paymentStatusReq true "pending or completed"
// @Success 200 {object} domain.Invoice
// @Failure 400 {object} map[string]any
// @Failure 409 {object} map[string]string
// @Router /invoices/{id}/payment-status [put]
func (s *Server) setPaymentStatus(c *gin.Context) {
	var req paymentStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	inv, err := s.invoices.SetPaymentStatus(c, c.Param("id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// @Summary Sales summary
// @Tags analytics
// @Produce json
// @Param from query string false "First day, YYYY-MM-DD"
// @Param to query string false "Last day (inclusive), YYYY-MM-DD"
// @Param top query int false "Number of best sellers" default(5)
// @Success 200 {object} analytics.Summary
// @Failure 400 {object} map[string]any
// @Router /analytics/sales [get]
func (s *Server) salesSummary(c *gin.Context) {
	from, to, err := dateRange(c)
	if err != nil {
		writeError(c, err)
		return
	}
	list, err := s.invoices.ListByDateRange(c, from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	top, _ := strconv.Atoi(c.Query("top"))
	c.JSON(http.StatusOK, analytics.Summarize(list, top))
}

// @Summary Export sales workbook
// @Tags analytics
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param from query string false "First day, YYYY-MM-DD"
// @Param to query string false "Last day (inclusive), YYYY-MM-DD"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]any
// @Router /analytics/sales.xlsx [get]
func (s *Server) salesExport(c *gin.Context) {
	from, to, err := dateRange(c)
	if err != nil {
		writeError(c, err)
		return
	}
	list, err := s.invoices.ListByDateRange(c, from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := analytics.WriteXLSX(&buf, list); err != nil {
		writeError(c, err)
		return
	}
	name := fmt.Sprintf("sales_%s_%s.xlsx", from.Format(dateLayout), to.AddDate(0, 0, -1).Format(dateLayout))
	c.Header("Content-Disposition", "attachment; filename="+name)
	c.Data(http.StatusOK, analytics.ContentTypeXLSX, buf.Bytes())
}
