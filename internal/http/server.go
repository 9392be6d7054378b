// Package httpapi exposes the catalog, drafting sessions, invoices and sales
// analytics over HTTP.
//
//go:generate swag init -g server.go -o ../../docs
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"invoicedesk/internal/domain"
	"invoicedesk/internal/logging"
	"invoicedesk/internal/qr"
	"invoicedesk/internal/scanner"
	"invoicedesk/internal/service"
	"invoicedesk/internal/workflow"
)

// @title invoicedesk API
// @version 1.0
// @BasePath /api/v1

// Deps everything the handlers call into.
type Deps struct {
	Products     *service.CatalogService
	Invoices     *service.InvoiceService
	Sessions     *workflow.Registry
	Workflow     *workflow.Controller
	Scanner      *scanner.Adapter
	Decoder      *qr.MultiDecoder
	Log          logging.Logger
	AllowOrigins []string
}

type Server struct {
	engine   *gin.Engine
	products *service.CatalogService
	invoices *service.InvoiceService
	sessions *workflow.Registry
	flow     *workflow.Controller
	scanner  *scanner.Adapter
	decoder  *qr.MultiDecoder
	log      logging.Logger
}

func NewServer(d Deps) *Server {
	if d.Log == nil {
		d.Log = logging.Nop()
	}
	if d.Decoder == nil {
		d.Decoder = qr.NewDecoder()
	}
	if len(d.AllowOrigins) == 0 {
		d.AllowOrigins = []string{"*"}
	}

	r := gin.New()
	// gin.Context отдаёт отмену запроса в сервисы
	r.ContextWithFallback = true
	r.MaxMultipartMemory = 8 << 20
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     d.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s := &Server{
		engine:   r,
		products: d.Products,
		invoices: d.Invoices,
		sessions: d.Sessions,
		flow:     d.Workflow,
		scanner:  d.Scanner,
		decoder:  d.Decoder,
		log:      d.Log,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	// Swagger UI
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := s.engine.Group("/api/v1")
	{
		products := v1.Group("/products")
		products.POST("", s.createProduct)
		products.GET("", s.listProducts)
		products.GET(":id", s.getProduct)
		products.PATCH(":id", s.updateProduct)
		products.DELETE(":id", s.deleteProduct)
		products.GET(":id/qrcode", s.productQRCode)

		sessions := v1.Group("/sessions")
		sessions.POST("", s.createSession)
		sessions.GET("", s.listSessions)
		sessions.GET(":id", s.getSession)
		sessions.DELETE(":id", s.deleteSession)
		sessions.POST(":id/items", s.addItem)
		sessions.PATCH(":id/items/:product_id", s.updateItem)
		sessions.DELETE(":id/items/:product_id", s.removeItem)
		sessions.PUT(":id/buyer", s.setBuyer)
		sessions.PUT(":id/payment-method", s.setPaymentMethod)
		sessions.POST(":id/submit", s.submitSession)
		sessions.POST(":id/scan", s.scanImage)
		sessions.GET(":id/scan/stream", s.scanStream)

		invoices := v1.Group("/invoices")
		invoices.GET("", s.listInvoices)
		invoices.GET(":id", s.getInvoice)
		invoices.GET(":id/print", s.printInvoice)
		invoices.POST(":id/void", s.voidInvoice)
		invoices.PUT(":id/payment-status", s.setPaymentStatus)

		analytics := v1.Group("/analytics")
		analytics.GET("/sales", s.salesSummary)
		analytics.GET("/sales.xlsx", s.salesExport)
	}
}

func writeError(c *gin.Context, err error) {
	status := mapErrorToStatus(err)
	body := gin.H{"error": err.Error()}
	if ve, ok := domain.AsValidationError(err); ok {
		body["fields"] = ve.Fields
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, body)
}

func mapErrorToStatus(err error) int {
	switch {
	case domain.IsValidationError(err):
		return http.StatusBadRequest
	case domain.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, workflow.ErrSessionBusy),
		errors.Is(err, workflow.ErrSubmissionPending),
		errors.Is(err, workflow.ErrIllegalTransition),
		errors.Is(err, workflow.ErrInvoiceVoided):
		return http.StatusConflict
	case domain.IsTransientIOError(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
