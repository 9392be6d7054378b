package analytics

import (
	"fmt"
	"io"

	"github.com/tealeg/xlsx"

	"invoicedesk/internal/domain"
)

const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteXLSX writes an "Invoices" sheet with one row per invoice and a
// "Summary" sheet with the aggregated figures.
func WriteXLSX(w io.Writer, invoices []domain.Invoice) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Invoices")
	if err != nil {
		return fmt.Errorf("add invoices sheet: %w", err)
	}

	// Header row
	headers := []string{
		"ID", "Date", "Buyer", "Email", "Phone", "Items", "Quantity",
		"Subtotal", "Tax", "Total", "Payment Method", "Payment Status", "Status",
	}
	headerRow := sheet.AddRow()
	for _, h := range headers {
		headerRow.AddCell().SetValue(h)
	}

	// Data rows
	for _, inv := range invoices {
		row := sheet.AddRow()
		row.AddCell().SetValue(inv.ID)
		row.AddCell().SetValue(inv.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
		row.AddCell().SetValue(inv.Buyer.Name)
		row.AddCell().SetValue(inv.Buyer.Email)
		row.AddCell().SetValue(inv.Buyer.Phone)
		row.AddCell().SetValue(len(inv.LineItems))
		row.AddCell().SetValue(inv.TotalQuantity)
		row.AddCell().SetValue(inv.Subtotal)
		row.AddCell().SetValue(inv.TaxAmount)
		row.AddCell().SetValue(inv.TotalAmount)
		row.AddCell().SetValue(string(inv.PaymentMethod))
		row.AddCell().SetValue(string(inv.PaymentStatus))
		row.AddCell().SetValue(string(inv.OrderStatus))
	}

	summary, err := file.AddSheet("Summary")
	if err != nil {
		return fmt.Errorf("add summary sheet: %w", err)
	}
	s := Summarize(invoices, DefaultTopN)
	addPair := func(k string, v interface{}) {
		r := summary.AddRow()
		r.AddCell().SetValue(k)
		r.AddCell().SetValue(v)
	}
	addPair("Total Sales", s.TotalSales)
	addPair("Transactions", s.TransactionCount)
	addPair("Average Sale", s.AverageSale)
	summary.AddRow()
	addPair("Date", "Sales")
	for _, d := range s.SalesByDay {
		addPair(d.Date, d.Total)
	}
	summary.AddRow()
	addPair("Top Product", "Quantity")
	for _, p := range s.TopProducts {
		addPair(p.Name, p.Quantity)
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
