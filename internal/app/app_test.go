package app

import (
	"bytes"
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicedesk/internal/config"
	"invoicedesk/internal/domain"
	"invoicedesk/internal/events"
	"invoicedesk/internal/repository"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(config.New(), "")
	require.NoError(t, err)
	cfg.Retry.BaseDelay = 0
	return cfg
}

func TestNew_MemoryStack(t *testing.T) {
	var logs bytes.Buffer
	a, err := New(context.Background(), memoryConfig(t), &logs)
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.IsType(t, &repository.MemoryStore{}, a.Catalog)
	assert.IsType(t, events.Nop{}, a.Publisher)
	assert.Contains(t, logs.String(), "app ready")

	ctx := context.Background()
	p, err := a.Products.Create(ctx, domain.CatalogItem{Name: "Ring", Price: 100, Quantity: 5})
	require.NoError(t, err)

	s := a.Sessions.New()
	_, err = a.Scanner.Scan(ctx, s, p.Name)
	require.NoError(t, err)
	require.NoError(t, s.SetBuyer(domain.BuyerDetails{Name: "Asha", Email: "asha@example.com", Phone: "9876543210"}))

	res, err := a.Workflow.Submit(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 118.0, res.Invoice.TotalAmount)

	got, err := a.Products.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Quantity)
}

func TestNew_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig(t)
	cfg.Redis.Addr = mr.Addr()

	a, err := New(context.Background(), cfg, &bytes.Buffer{})
	require.NoError(t, err)
	defer a.Close(context.Background())

	_, err = a.Products.List(context.Background(), repository.CatalogFilter{})
	require.NoError(t, err)
	assert.True(t, mr.Exists("catalog:all"))
}

func TestNew_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig(t)
	cfg.Redis.Addr = mr.Addr()
	mr.Close()

	_, err := New(context.Background(), cfg, &bytes.Buffer{})
	assert.Error(t, err)
}
