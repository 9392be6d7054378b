package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"invoicedesk/internal/domain"
)

func TestMemoryStore_CatalogCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p := domain.CatalogItem{Name: "Ring", Code: "SKA-RNG-123456-a1b2c3", Price: 100, Quantity: 5}
	if err := store.Create(ctx, &p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == "" {
		t.Fatalf("no id")
	}

	got, err := store.Get(ctx, p.ID)
	if err != nil || got.ID != p.ID {
		t.Fatalf("get: %v", err)
	}
	byCode, err := store.FindByCode(ctx, p.Code)
	if err != nil || byCode.ID != p.ID {
		t.Fatalf("find by code: %v", err)
	}

	price := 120.0
	updated, err := store.Update(ctx, p.ID, domain.CatalogPatch{Price: &price})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Price != 120 || updated.Quantity != 5 {
		t.Fatalf("patch applied wrongly: %+v", updated)
	}

	if err := store.SoftDelete(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, p.ID); !domain.IsNotFoundError(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.Update(ctx, p.ID, domain.CatalogPatch{Price: &price}); !domain.IsNotFoundError(err) {
		t.Fatalf("update of deleted item must fail, got %v", err)
	}

	// запись остаётся с флагом deleted
	all, _ := store.List(ctx, CatalogFilter{IncludeDeleted: true})
	if len(all) != 1 || !all[0].Deleted || all[0].DeletedAt == nil {
		t.Fatalf("soft delete lost the record: %+v", all)
	}
	live, _ := store.List(ctx, CatalogFilter{})
	if len(live) != 0 {
		t.Fatalf("deleted item listed")
	}
}

func TestMemoryStore_DuplicateCode(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := domain.CatalogItem{Name: "A", Code: "SKA-RNG-123456-a1b2c3", Price: 1}
	b := domain.CatalogItem{Name: "B", Code: "SKA-RNG-123456-a1b2c3", Price: 1}
	if err := store.Create(ctx, &a); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, &b); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	p := domain.CatalogItem{Name: "A", Price: 1, Variants: []domain.Variant{{Name: "gold"}}}
	if err := store.Create(ctx, &p); err != nil {
		t.Fatal(err)
	}
	got, _ := store.Get(ctx, p.ID)
	got.Variants[0].Name = "silver"
	again, _ := store.Get(ctx, p.ID)
	if again.Variants[0].Name != "gold" {
		t.Fatalf("stored item mutated through returned copy")
	}
}

func TestList_Filtering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	add := func(n, cat string, price float64) {
		p := domain.CatalogItem{Name: n, Category: cat, Price: price, Quantity: 1}
		if err := store.Create(ctx, &p); err != nil {
			t.Fatal(err)
		}
	}
	add("Gold Ring", "rings", 100)
	add("Silver Chain", "chains", 50)
	add("Diamond Ring", "rings", 150)

	// name contains
	list, _ := store.List(ctx, CatalogFilter{NameSubstring: "ring"})
	if len(list) != 2 {
		t.Fatalf("name filter: %d", len(list))
	}
	if list[0].Name != "Gold Ring" || list[1].Name != "Diamond Ring" {
		t.Fatalf("creation order lost: %v %v", list[0].Name, list[1].Name)
	}

	list, _ = store.List(ctx, CatalogFilter{Category: "CHAINS"})
	if len(list) != 1 {
		t.Fatalf("category filter: %d", len(list))
	}

	// min
	min := 100.0
	list, _ = store.List(ctx, CatalogFilter{MinPrice: &min})
	for _, p := range list {
		if p.Price < min {
			t.Fatalf("min filter fail")
		}
	}

	// max
	max := 100.0
	list, _ = store.List(ctx, CatalogFilter{MaxPrice: &max})
	for _, p := range list {
		if p.Price > max {
			t.Fatalf("max filter fail")
		}
	}
}

func TestMemoryInvoices_LifecycleAndRange(t *testing.T) {
	ctx := context.Background()
	invoices := NewMemoryInvoices(NewMemoryStore())
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		inv := domain.Invoice{ID: id, OrderStatus: domain.OrderProcessing, CreatedAt: base.AddDate(0, 0, i)}
		if err := invoices.Create(ctx, &inv); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	dup := domain.Invoice{ID: "a"}
	if err := invoices.Create(ctx, &dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	printed := domain.OrderPrinted
	got, err := invoices.Update(ctx, "b", domain.InvoicePatch{OrderStatus: &printed})
	if err != nil || got.OrderStatus != domain.OrderPrinted {
		t.Fatalf("update: %v", err)
	}
	if _, err := invoices.Update(ctx, "zzz", domain.InvoicePatch{}); !domain.IsNotFoundError(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	// [start, end)
	list, _ := invoices.QueryByDateRange(ctx, base, base.AddDate(0, 0, 2))
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Fatalf("range: %+v", list)
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMemoryStore().List(ctx, CatalogFilter{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
