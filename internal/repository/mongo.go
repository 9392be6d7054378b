package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"invoicedesk/internal/domain"
)

const (
	productsCollection = "products"
	invoicesCollection = "invoices"
	logsCollection     = "logs"
)

// storeErr maps driver errors onto the domain taxonomy.
func storeErr(op, kind, id string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return domain.NewNotFoundError(kind, id)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s %s: %w", kind, id, ErrDuplicate)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	}
	return domain.NewTransientIOError(op, err)
}

var notDeleted = bson.M{"$ne": true}

// MongoCatalog CatalogStore on the products collection
type MongoCatalog struct {
	collection *mongo.Collection
}

func NewMongoCatalog(db *mongo.Database) *MongoCatalog {
	return &MongoCatalog{collection: db.Collection(productsCollection)}
}

var _ CatalogStore = (*MongoCatalog)(nil)

func (m *MongoCatalog) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "code", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "deleted", Value: 1}, {Key: "created_at", Value: 1}},
		},
	}
	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create product indexes: %w", err)
	}
	return nil
}

func (m *MongoCatalog) List(ctx context.Context, f CatalogFilter) ([]domain.CatalogItem, error) {
	filter := bson.M{}
	if !f.IncludeDeleted {
		filter["deleted"] = notDeleted
	}
	if f.NameSubstring != "" {
		filter["name"] = bson.M{"$regex": regexp.QuoteMeta(f.NameSubstring), "$options": "i"}
	}
	if f.Category != "" {
		filter["category"] = bson.M{"$regex": "^" + regexp.QuoteMeta(f.Category) + "$", "$options": "i"}
	}
	price := bson.M{}
	if f.MinPrice != nil {
		price["$gte"] = *f.MinPrice
	}
	if f.MaxPrice != nil {
		price["$lte"] = *f.MaxPrice
	}
	if len(price) > 0 {
		filter["price"] = price
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, storeErr("list products", "product", "", err)
	}
	out := make([]domain.CatalogItem, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, storeErr("decode products", "product", "", err)
	}
	return out, nil
}

func (m *MongoCatalog) Get(ctx context.Context, id string) (*domain.CatalogItem, error) {
	return m.findOne(ctx, bson.M{"_id": id, "deleted": notDeleted}, id)
}

func (m *MongoCatalog) FindByCode(ctx context.Context, code string) (*domain.CatalogItem, error) {
	if code == "" {
		return nil, domain.NewNotFoundError("product", code)
	}
	return m.findOne(ctx, bson.M{"code": code, "deleted": notDeleted}, code)
}

func (m *MongoCatalog) findOne(ctx context.Context, filter bson.M, id string) (*domain.CatalogItem, error) {
	var item domain.CatalogItem
	if err := m.collection.FindOne(ctx, filter).Decode(&item); err != nil {
		return nil, storeErr("get product", "product", id, err)
	}
	return &item, nil
}

func (m *MongoCatalog) Create(ctx context.Context, item *domain.CatalogItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt, item.UpdatedAt = now, now
	if _, err := m.collection.InsertOne(ctx, item); err != nil {
		return storeErr("insert product", "product", item.ID, err)
	}
	return nil
}

func (m *MongoCatalog) Update(ctx context.Context, id string, patch domain.CatalogPatch) (*domain.CatalogItem, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Category != nil {
		set["category"] = *patch.Category
	}
	if patch.Price != nil {
		set["price"] = *patch.Price
	}
	if patch.Quantity != nil {
		set["quantity"] = *patch.Quantity
	}
	if patch.Variants != nil {
		set["variants"] = *patch.Variants
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var item domain.CatalogItem
	err := m.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "deleted": notDeleted},
		bson.M{"$set": set},
		opts,
	).Decode(&item)
	if err != nil {
		return nil, storeErr("update product", "product", id, err)
	}
	return &item, nil
}

func (m *MongoCatalog) SoftDelete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := m.collection.UpdateOne(ctx,
		bson.M{"_id": id, "deleted": notDeleted},
		bson.M{"$set": bson.M{"deleted": true, "deleted_at": now, "updated_at": now}},
	)
	if err != nil {
		return storeErr("delete product", "product", id, err)
	}
	if res.MatchedCount == 0 {
		return domain.NewNotFoundError("product", id)
	}
	return nil
}

// MongoInvoices InvoiceStore on the invoices collection
type MongoInvoices struct {
	collection *mongo.Collection
}

func NewMongoInvoices(db *mongo.Database) *MongoInvoices {
	return &MongoInvoices{collection: db.Collection(invoicesCollection)}
}

var _ InvoiceStore = (*MongoInvoices)(nil)

func (m *MongoInvoices) CreateIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create invoice indexes: %w", err)
	}
	return nil
}

func (m *MongoInvoices) Create(ctx context.Context, inv *domain.Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	inv.UpdatedAt = inv.CreatedAt
	if _, err := m.collection.InsertOne(ctx, inv); err != nil {
		return storeErr("insert invoice", "invoice", inv.ID, err)
	}
	return nil
}

func (m *MongoInvoices) Get(ctx context.Context, id string) (*domain.Invoice, error) {
	var inv domain.Invoice
	if err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&inv); err != nil {
		return nil, storeErr("get invoice", "invoice", id, err)
	}
	return &inv, nil
}

func (m *MongoInvoices) Update(ctx context.Context, id string, patch domain.InvoicePatch) (*domain.Invoice, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if patch.PaymentStatus != nil {
		set["payment_status"] = *patch.PaymentStatus
	}
	if patch.OrderStatus != nil {
		set["order_status"] = *patch.OrderStatus
	}
	if patch.VoidReason != nil {
		set["void_reason"] = *patch.VoidReason
	}
	if patch.VoidedBy != nil {
		set["voided_by"] = *patch.VoidedBy
	}
	if patch.VoidedAt != nil {
		set["voided_at"] = *patch.VoidedAt
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var inv domain.Invoice
	err := m.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&inv)
	if err != nil {
		return nil, storeErr("update invoice", "invoice", id, err)
	}
	return &inv, nil
}

func (m *MongoInvoices) QueryByDateRange(ctx context.Context, start, end time.Time) ([]domain.Invoice, error) {
	filter := bson.M{"created_at": bson.M{"$gte": start, "$lt": end}}
	cur, err := m.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, storeErr("query invoices", "invoice", "", err)
	}
	out := make([]domain.Invoice, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, storeErr("decode invoices", "invoice", "", err)
	}
	return out, nil
}

// MongoLogs LogStore on the logs collection
type MongoLogs struct {
	collection *mongo.Collection
}

func NewMongoLogs(db *mongo.Database) *MongoLogs {
	return &MongoLogs{collection: db.Collection(logsCollection)}
}

func (m *MongoLogs) AppendLog(ctx context.Context, e domain.LogEntry) error {
	if _, err := m.collection.InsertOne(ctx, e); err != nil {
		return storeErr("insert log", "log", "", err)
	}
	return nil
}
