// Package printing renders printable invoice documents.
package printing

import (
	"fmt"
	"html/template"
	"io"

	"invoicedesk/internal/domain"
)

// CompanyName printed in the invoice header.
const CompanyName = "SKAI Accessories"

var funcs = template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"lineTotal": func(li domain.LineItem) string {
		return fmt.Sprintf("%.2f", li.UnitPrice*float64(li.Quantity))
	},
	"voided": func(s domain.OrderStatus) bool { return s == domain.OrderVoided },
}

var invoiceTmpl = template.Must(template.New("invoice").Funcs(funcs).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Invoice {{.Invoice.ID}}</title></head>
<body>
<div class="invoice-container">
  <div class="header">
    <h1>{{.Company}}</h1>
    <p>Invoice #: {{.Invoice.ID}}</p>
    <p>Date: {{.Invoice.CreatedAt.Format "2006-01-02"}}</p>
    {{- with .Invoice.Buyer}}{{if .Name}}
    <div class="buyer-details">
      <h2>Bill To:</h2>
      <p>{{.Name}}</p>
      <p>{{.Email}}</p>
      <p>{{.Phone}}</p>
    </div>
    {{- end}}{{end}}
  </div>
  <table class="invoice-items">
    <thead><tr><th>Item</th><th>Quantity</th><th>Price</th><th>Total</th></tr></thead>
    <tbody>
    {{- range .Invoice.LineItems}}
      <tr><td>{{.Name}}</td><td>{{.Quantity}}</td><td>{{money .UnitPrice}}</td><td>{{lineTotal .}}</td></tr>
    {{- end}}
    </tbody>
    <tfoot>
      <tr><td colspan="3">Subtotal</td><td>{{money .Invoice.Subtotal}}</td></tr>
      <tr><td colspan="3">GST (18%)</td><td>{{money .Invoice.TaxAmount}}</td></tr>
      <tr><td colspan="3">Total</td><td>{{money .Invoice.TotalAmount}}</td></tr>
    </tfoot>
  </table>
  <div class="footer">
    <p>Thank you for your business!</p>
    <p>Payment Method: {{.Invoice.PaymentMethod}}</p>
    <p>Payment Status: {{.Invoice.PaymentStatus}}</p>
    {{- if voided .Invoice.OrderStatus}}
    <div class="void-stamp">VOID</div>
    <p>Void Reason: {{.Invoice.VoidReason}}</p>
    {{- end}}
  </div>
</div>
</body>
</html>
`))

// Render writes the invoice as an HTML page.
func Render(w io.Writer, inv *domain.Invoice) error {
	return invoiceTmpl.Execute(w, struct {
		Company string
		Invoice *domain.Invoice
	}{CompanyName, inv})
}
