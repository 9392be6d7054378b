package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"invoicedesk/internal/domain"
	"invoicedesk/internal/qr"
	"invoicedesk/internal/repository"
)

type createProductReq struct {
	Code        string           `json:"code"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	Price       float64          `json:"price"`
	Quantity    int              `json:"quantity"`
	Variants    []domain.Variant `json:"variants"`
}

// @Summary Create product
// @Tags products
// @Accept json
// @Produce json
// @Param input body createProductReq true "Product"
// @Success 201 {object} domain.CatalogItem
// @Failure 400 {object} map[string]any
// @Router /products [post]
func (s *Server) createProduct(c *gin.Context) {
	var req createProductReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := s.products.Create(c, domain.CatalogItem{
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Quantity:    req.Quantity,
		Variants:    req.Variants,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// @Summary Get product by id
// @Tags products
// @Produce json
// @Param id path string true "Product ID"
// @Success 200 {object} domain.CatalogItem
// @Failure 404 {object} map[string]string
// @Router /products/{id} [get]
func (s *Server) getProduct(c *gin.Context) {
	p, err := s.products.Get(c, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Update product
// @Description Only the fields present in the body are changed.
// @Tags products
// @Accept json
// @Produce json
// @Param id path string true "Product ID"
// @Param input body domain.CatalogPatch true "Patch"
// @Success 200 {object} domain.CatalogItem
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /products/{id} [patch]
func (s *Server) updateProduct(c *gin.Context) {
	var patch domain.CatalogPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := s.products.Update(c, c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Delete product
// @Description Soft delete; invoices keep referencing the product.
// @Tags products
// @Param id path string true "Product ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /products/{id} [delete]
func (s *Server) deleteProduct(c *gin.Context) {
	if err := s.products.Delete(c, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary List products
// @Tags products
// @Produce json
// @Param q query string false "Name contains"
// @Param category query string false "Category"
// @Param min_price query number false "Min price"
// @Param max_price query number false "Max price"
// @Success 200 {array} domain.CatalogItem
// @Router /products [get]
func (s *Server) listProducts(c *gin.Context) {
	f := repository.CatalogFilter{
		NameSubstring: c.Query("q"),
		Category:      c.Query("category"),
	}
	if v := c.Query("min_price"); v != "" {
		if x, err := strconv.ParseFloat(v, 64); err == nil {
			f.MinPrice = &x
		}
	}
	if v := c.Query("max_price"); v != "" {
		if x, err := strconv.ParseFloat(v, 64); err == nil {
			f.MaxPrice = &x
		}
	}
	list, err := s.products.List(c, f)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []domain.CatalogItem{}
	}
	c.JSON(http.StatusOK, list)
}

// @Summary Product QR code
// @Description PNG label encoding the product code, or the id when no code is set.
// @Tags products
// @Produce png
// @Param id path string true "Product ID"
// @Param size query int false "Side in pixels" default(256)
// @Success 200 {file} binary
// @Failure 404 {object} map[string]string
// @Router /products/{id}/qrcode [get]
func (s *Server) productQRCode(c *gin.Context) {
	p, err := s.products.Get(c, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "256"))
	content := p.Code
	if content == "" {
		content = p.ID
	}
	png, err := qr.Encode(content, size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
