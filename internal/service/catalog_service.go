package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"invoicedesk/internal/cache"
	"invoicedesk/internal/domain"
	"invoicedesk/internal/logging"
	"invoicedesk/internal/repository"
)

// CatalogService инкапсулирует бизнес-логику вокруг товаров
type CatalogService struct {
	repo  repository.CatalogStore
	cache cache.CatalogCache
	log   logging.Logger
	sfg   singleflight.Group // защита от cache stampede
}

func NewCatalogService(repo repository.CatalogStore, c cache.CatalogCache, log logging.Logger) *CatalogService {
	if c == nil {
		c = cache.Nop{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &CatalogService{repo: repo, cache: c, log: log}
}

func (s *CatalogService) Create(ctx context.Context, item domain.CatalogItem) (*domain.CatalogItem, error) {
	item.Name = strings.TrimSpace(item.Name)
	item.Code = strings.TrimSpace(item.Code)
	if err := domain.ValidateCatalogItem(item); err != nil {
		return nil, err
	}
	if err := s.ensureUniqueName(ctx, item.Name, ""); err != nil {
		return nil, err
	}
	if item.Code != "" {
		_, err := s.repo.FindByCode(ctx, item.Code)
		switch {
		case err == nil:
			return nil, domain.NewValidationError(map[string]string{"code": "product code already exists"})
		case !domain.IsNotFoundError(err):
			return nil, err
		}
	}

	cp := item
	cp.ID = ""
	cp.Deleted, cp.DeletedAt = false, nil
	if err := s.repo.Create(ctx, &cp); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, domain.NewValidationError(map[string]string{"code": "product code already exists"})
		}
		return nil, err
	}
	s.invalidate()
	s.log.Info("product created", "product_id", cp.ID, "name", cp.Name)
	return &cp, nil
}

func (s *CatalogService) Get(ctx context.Context, id string) (*domain.CatalogItem, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.NewValidationError(map[string]string{"id": "product id is required"})
	}
	return s.repo.Get(ctx, id)
}

// List serves the unfiltered listing from cache; filtered queries go to the store.
func (s *CatalogService) List(ctx context.Context, f repository.CatalogFilter) ([]domain.CatalogItem, error) {
	if !f.IsZero() {
		return s.repo.List(ctx, f)
	}
	// общая загрузка не зависит от отмены первого вызывающего
	loadCtx := context.WithoutCancel(ctx)
	ch := s.sfg.DoChan("catalog", func() (interface{}, error) {
		items, err := s.cache.Get(loadCtx)
		if err == nil {
			return items, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("cache get error", "error", err) // продолжаем без кэша
		}

		items, err = s.repo.List(loadCtx, f)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(loadCtx, items); err != nil {
			s.log.Warn("cache set error", "error", err)
		}
		return items, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]domain.CatalogItem), nil
	}
}

// Update applies a partial update. Stock decrements from the invoice workflow
// come through here too so the cached listing is invalidated.
func (s *CatalogService) Update(ctx context.Context, id string, patch domain.CatalogPatch) (*domain.CatalogItem, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		patch.Name = &name
		if err := s.ensureUniqueName(ctx, name, id); err != nil {
			return nil, err
		}
	}
	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.invalidate()
	return updated, nil
}

// Delete soft-deletes the product.
func (s *CatalogService) Delete(ctx context.Context, id string) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.invalidate()
	s.log.Info("product deleted", "product_id", id)
	return nil
}

// Lookup resolves scanned or typed text to a live product: by id, then by
// product code, then by exact name ignoring case.
func (s *CatalogService) Lookup(ctx context.Context, text string) (*domain.CatalogItem, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.NewNotFoundError("product", text)
	}
	item, err := s.repo.Get(ctx, text)
	if err == nil || !domain.IsNotFoundError(err) {
		return item, err
	}
	if domain.ProductCodePattern.MatchString(text) {
		item, err = s.repo.FindByCode(ctx, text)
		if err == nil || !domain.IsNotFoundError(err) {
			return item, err
		}
	}
	items, err := s.List(ctx, repository.CatalogFilter{})
	if err != nil {
		return nil, err
	}
	for i := range items {
		if strings.EqualFold(items[i].Name, text) {
			return &items[i], nil
		}
	}
	return nil, domain.NewNotFoundError("product", text)
}

func (s *CatalogService) ensureUniqueName(ctx context.Context, name, selfID string) error {
	existing, err := s.repo.List(ctx, repository.CatalogFilter{NameSubstring: name})
	if err != nil {
		return err
	}
	for _, p := range existing {
		if p.ID != selfID && strings.EqualFold(p.Name, name) {
			return domain.NewValidationError(map[string]string{"name": "A product with this name already exists"})
		}
	}
	return nil
}

func validatePatch(p domain.CatalogPatch) error {
	fields := map[string]string{}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		fields["name"] = "product name is required"
	}
	if p.Price != nil && *p.Price <= 0 {
		fields["price"] = "must be greater than zero"
	}
	if p.Quantity != nil && *p.Quantity < 0 {
		fields["quantity"] = "must be non-negative"
	}
	if p.Variants != nil {
		probe := domain.CatalogItem{Name: "probe", Price: 1, Variants: *p.Variants}
		if ve, ok := domain.AsValidationError(domain.ValidateCatalogItem(probe)); ok {
			for k, v := range ve.Fields {
				fields[k] = v
			}
		}
	}
	if len(fields) > 0 {
		return domain.NewValidationError(fields)
	}
	return nil
}

func (s *CatalogService) invalidate() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx); err != nil {
		s.log.Warn("cache invalidate error", "error", err)
	}
}
