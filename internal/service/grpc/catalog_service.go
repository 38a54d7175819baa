package grpcsvc

import (
	"context"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
)

// Catalog: путь записи товаров и вариантов.
type Catalog interface {
	CreateProduct(ctx context.Context, in catalog.ProductInput) domain.Result[domain.Product]
	UpdateProduct(ctx context.Context, productID int64, patch catalog.ProductPatch) domain.Result[domain.Product]
	UpdateVariant(ctx context.Context, variantID int64, patch catalog.VariantPatch) domain.Result[domain.ProductVariant]
	SoftDeleteVariant(ctx context.Context, variantID int64) domain.Result[domain.ProductVariant]
	RestoreVariant(ctx context.Context, variantID int64) domain.Result[domain.ProductVariant]
	GetProduct(ctx context.Context, productID int64) domain.Result[domain.Product]
}

// InventoryRefresher пересчитывает агрегированный остаток по требованию.
type InventoryRefresher interface {
	Recompute(ctx context.Context, productID int64) (int64, bool)
}

// CatalogService реализует shop.v1.CatalogService. Все записи доступны только админу.
type CatalogService struct {
	catalog   Catalog
	inventory InventoryRefresher
	logger    *log.Entry
}

// NewCatalogService конструирует сервис каталога.
func NewCatalogService(c Catalog, inventory InventoryRefresher, logger *log.Entry) *CatalogService {
	if logger == nil {
		logger = log.New().WithField("component", "grpc-catalog-service")
	}
	return &CatalogService{catalog: c, inventory: inventory, logger: logger}
}

func (s *CatalogService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*ProductResponse, error) {
	if _, err := admin(ctx); err != nil {
		return nil, err
	}
	return s.productReply("CreateProduct", s.catalog.CreateProduct(ctx, catalog.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Thumbnail:   req.Thumbnail,
		Images:      req.Images,
		Variants:    fromVariantInputs(req.Variants),
	}))
}

func (s *CatalogService) UpdateProduct(ctx context.Context, req *UpdateProductRequest) (*ProductResponse, error) {
	if _, err := admin(ctx); err != nil {
		return nil, err
	}
	return s.productReply("UpdateProduct", s.catalog.UpdateProduct(ctx, req.ProductID, catalog.ProductPatch{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Thumbnail:   req.Thumbnail,
		Star:        req.Star,
		Images:      req.Images,
		NewVariants: fromVariantInputs(req.NewVariants),
	}))
}

func (s *CatalogService) UpdateVariant(ctx context.Context, req *UpdateVariantRequest) (*VariantResponse, error) {
	if _, err := admin(ctx); err != nil {
		return nil, err
	}
	return s.variantReply("UpdateVariant", s.catalog.UpdateVariant(ctx, req.VariantID, catalog.VariantPatch{
		Name:      req.Name,
		Price:     req.Price,
		Inventory: req.Inventory,
	}))
}

func (s *CatalogService) DeleteVariant(ctx context.Context, req *VariantIDRequest) (*VariantResponse, error) {
	if _, err := admin(ctx); err != nil {
		return nil, err
	}
	return s.variantReply("DeleteVariant", s.catalog.SoftDeleteVariant(ctx, req.VariantID))
}

func (s *CatalogService) RestoreVariant(ctx context.Context, req *VariantIDRequest) (*VariantResponse, error) {
	if _, err := admin(ctx); err != nil {
		return nil, err
	}
	return s.variantReply("RestoreVariant", s.catalog.RestoreVariant(ctx, req.VariantID))
}

// GetProduct публичен: metadata вызывающего не требуется.
func (s *CatalogService) GetProduct(ctx context.Context, req *ProductIDRequest) (*ProductResponse, error) {
	return s.productReply("GetProduct", s.catalog.GetProduct(ctx, req.ProductID))
}

// RefreshInventory заново сводит остаток товара. Сбой пересчёта не ошибка: updated=false.
func (s *CatalogService) RefreshInventory(ctx context.Context, req *ProductIDRequest) (*InventoryResponse, error) {
	if _, err := admin(ctx); err != nil {
		return nil, err
	}
	if req.ProductID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "product_id is required")
	}
	total, ok := s.inventory.Recompute(ctx, req.ProductID)
	return &InventoryResponse{ProductID: req.ProductID, Inventory: total, Updated: ok}, nil
}

func (s *CatalogService) productReply(operation string, res domain.Result[domain.Product]) (*ProductResponse, error) {
	if res.Failed() {
		return nil, statusFromError(s.logger, operation, res.Err())
	}
	product, ok := res.Data()
	if !ok {
		return &ProductResponse{}, nil
	}
	return &ProductResponse{Found: true, Product: toProduct(product)}, nil
}

func (s *CatalogService) variantReply(operation string, res domain.Result[domain.ProductVariant]) (*VariantResponse, error) {
	if res.Failed() {
		return nil, statusFromError(s.logger, operation, res.Err())
	}
	variant, ok := res.Data()
	if !ok {
		return &VariantResponse{}, nil
	}
	return &VariantResponse{Found: true, Variant: toVariant(variant)}, nil
}
