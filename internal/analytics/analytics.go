// Package analytics aggregates sales over invoices.
package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"invoicedesk/internal/domain"
)

// DefaultTopN number of best sellers reported.
const DefaultTopN = 5

type DaySales struct {
	Date  string  `json:"date"` // YYYY-MM-DD, UTC
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

type ProductSales struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type Summary struct {
	TotalSales       float64        `json:"total_sales"`
	TransactionCount int            `json:"transaction_count"`
	AverageSale      float64        `json:"average_sale"`
	SalesByDay       []DaySales     `json:"sales_by_day"`
	TopProducts      []ProductSales `json:"top_products"`
}

// Summarize aggregates non-voided invoices. Days are ordered by date, top
// products by quantity sold then by name.
func Summarize(invoices []domain.Invoice, topN int) Summary {
	if topN <= 0 {
		topN = DefaultTopN
	}
	total := decimal.Zero
	byDay := map[string]*DaySales{}
	dayTotals := map[string]decimal.Decimal{}
	qtyByName := map[string]int{}
	count := 0

	for _, inv := range invoices {
		if inv.OrderStatus == domain.OrderVoided {
			continue
		}
		count++
		amount := decimal.NewFromFloat(inv.TotalAmount)
		total = total.Add(amount)

		day := inv.CreatedAt.UTC().Format("2006-01-02")
		ds, ok := byDay[day]
		if !ok {
			ds = &DaySales{Date: day}
			byDay[day] = ds
		}
		ds.Count++
		dayTotals[day] = dayTotals[day].Add(amount)

		for _, li := range inv.LineItems {
			qtyByName[li.Name] += li.Quantity
		}
	}

	s := Summary{
		TotalSales:       total.InexactFloat64(),
		TransactionCount: count,
		SalesByDay:       make([]DaySales, 0, len(byDay)),
		TopProducts:      make([]ProductSales, 0, topN),
	}
	if count > 0 {
		s.AverageSale = total.Div(decimal.NewFromInt(int64(count))).Round(2).InexactFloat64()
	}

	for day, ds := range byDay {
		ds.Total = dayTotals[day].InexactFloat64()
		s.SalesByDay = append(s.SalesByDay, *ds)
	}
	sort.Slice(s.SalesByDay, func(i, j int) bool { return s.SalesByDay[i].Date < s.SalesByDay[j].Date })

	products := make([]ProductSales, 0, len(qtyByName))
	for name, q := range qtyByName {
		products = append(products, ProductSales{Name: name, Quantity: q})
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Quantity != products[j].Quantity {
			return products[i].Quantity > products[j].Quantity
		}
		return products[i].Name < products[j].Name
	})
	if len(products) > topN {
		products = products[:topN]
	}
	s.TopProducts = append(s.TopProducts, products...)
	return s
}
