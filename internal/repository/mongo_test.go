package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"

	"invoicedesk/internal/domain"
)

func setupTestDB(t *testing.T) *mongo.Database {
	if testing.Short() {
		t.Skip("skipping MongoDB container test in -short mode")
	}
	ctx := context.Background()

	// Start MongoDB container
	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "invoicedesk_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Client().Disconnect(ctx) })
	return db
}

func TestMongoCatalog(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewMongoCatalog(db)
	require.NoError(t, repo.CreateIndexes(ctx))

	item := domain.CatalogItem{Name: "Gold Ring", Code: "SKA-RNG-123456-a1b2c3", Category: "rings", Price: 100, Quantity: 5}
	require.NoError(t, repo.Create(ctx, &item))
	require.NoError(t, repo.Create(ctx, &domain.CatalogItem{Name: "Chain", Price: 50}))
	require.NoError(t, repo.Create(ctx, &domain.CatalogItem{Name: "Bangle", Price: 70}))

	dup := domain.CatalogItem{Name: "Other", Code: item.Code, Price: 1}
	assert.ErrorIs(t, repo.Create(ctx, &dup), ErrDuplicate)

	got, err := repo.FindByCode(ctx, item.Code)
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)

	qty := 3
	updated, err := repo.Update(ctx, item.ID, domain.CatalogPatch{Quantity: &qty})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Quantity)
	assert.Equal(t, "Gold Ring", updated.Name)

	list, err := repo.List(ctx, CatalogFilter{NameSubstring: "ring"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, repo.SoftDelete(ctx, item.ID))
	_, err = repo.Get(ctx, item.ID)
	assert.True(t, domain.IsNotFoundError(err))
	assert.True(t, domain.IsNotFoundError(repo.SoftDelete(ctx, item.ID)))

	all, err := repo.List(ctx, CatalogFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMongoInvoices(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewMongoInvoices(db)
	require.NoError(t, repo.CreateIndexes(ctx))

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		inv := domain.Invoice{
			ID:          id,
			LineItems:   []domain.LineItem{{ProductID: "p1", Name: "Ring", UnitPrice: 100, Quantity: 2}},
			Subtotal:    200,
			OrderStatus: domain.OrderProcessing,
			CreatedAt:   base.AddDate(0, 0, i),
		}
		require.NoError(t, repo.Create(ctx, &inv))
	}
	err := repo.Create(ctx, &domain.Invoice{ID: "a", CreatedAt: base})
	assert.True(t, errors.Is(err, ErrDuplicate))

	voided := domain.OrderVoided
	reason := "wrong buyer"
	got, err := repo.Update(ctx, "b", domain.InvoicePatch{OrderStatus: &voided, VoidReason: &reason})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderVoided, got.OrderStatus)
	assert.Equal(t, "wrong buyer", got.VoidReason)
	require.Len(t, got.LineItems, 1)

	list, err := repo.QueryByDateRange(ctx, base, base.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)

	_, err = repo.Get(ctx, "missing")
	assert.True(t, domain.IsNotFoundError(err))
}

func TestMongoLogs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	logs := NewMongoLogs(db)
	require.NoError(t, logs.AppendLog(ctx, domain.LogEntry{Level: "WARN", Message: "retry", Source: "test", Timestamp: time.Now()}))
	n, err := db.Collection(logsCollection).CountDocuments(ctx, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
