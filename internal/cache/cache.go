package cache

import (
	"context"
	"errors"

	"invoicedesk/internal/domain"
)

// CatalogCache holds the unfiltered live catalog listing.
type CatalogCache interface {
	Get(ctx context.Context) ([]domain.CatalogItem, error)
	Set(ctx context.Context, items []domain.CatalogItem) error
	Delete(ctx context.Context) error
}

var ErrCacheMiss = errors.New("cache miss")

// Nop never stores anything; every Get is a miss.
type Nop struct{}

func (Nop) Get(context.Context) ([]domain.CatalogItem, error) { return nil, ErrCacheMiss }
func (Nop) Set(context.Context, []domain.CatalogItem) error { return nil }
func (Nop) Delete(context.Context) error { return nil }
