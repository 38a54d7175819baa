package grpcsvc

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
)

// Запросы и ответы API. Денежные поля сериализуются decimal-строками.

type CreateCartRequest struct{}

type AddCartItemRequest struct {
	VariantID int64 `json:"variant_id"`
	Qty       int64 `json:"qty"`
}

type CheckoutRequest struct {
	FullName      string          `json:"full_name"`
	Phone         string          `json:"phone"`
	Province      string          `json:"province"`
	District      string          `json:"district"`
	Ward          string          `json:"ward"`
	Address       string          `json:"address"`
	PaymentMethod string          `json:"payment_method"`
	ShippingPrice decimal.Decimal `json:"shipping_price"`
}

type UpdateStatusRequest struct {
	OrderID int64 `json:"order_id"`
	// Status — литерал статуса или алиас processing/shipping.
	Status string `json:"status"`
}

type OrderIDRequest struct {
	OrderID int64 `json:"order_id"`
}

type ListOrdersRequest struct {
	Page        int    `json:"page"`
	PageSize    int    `json:"page_size"`
	Sort        string `json:"sort"`
	WithDeleted bool   `json:"with_deleted"`
	Carts       bool   `json:"carts"`
}

// OrderResponse: Found=false означает пустой результат (нет корзины, переход не разрешён, заказ не найден).
type OrderResponse struct {
	Found    bool            `json:"found"`
	Order    *Order          `json:"order,omitempty"`
	Timeline []TimelineEvent `json:"timeline,omitempty"`
}

type ListOrdersResponse struct {
	Orders []Order `json:"orders"`
	Count  int     `json:"count"`
}

type AckResponse struct {
	Found bool  `json:"found"`
	ID    int64 `json:"id,omitempty"`
}

type Order struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	Status        *string         `json:"status"`
	FullName      string          `json:"full_name"`
	Phone         string          `json:"phone"`
	Province      string          `json:"province"`
	District      string          `json:"district"`
	Ward          string          `json:"ward"`
	Address       string          `json:"address"`
	PaymentMethod string          `json:"payment_method"`
	ShippingPrice decimal.Decimal `json:"shipping_price"`
	ItemsTotal    decimal.Decimal `json:"items_total"`
	Items         []OrderItem     `json:"items"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     *time.Time      `json:"deleted_at,omitempty"`
}

type OrderItem struct {
	ID        int64           `json:"id"`
	VariantID int64           `json:"variant_id"`
	Qty       int64           `json:"qty"`
	Price     decimal.Decimal `json:"price"`
	Variant   *Variant        `json:"variant,omitempty"`
}

type TimelineEvent struct {
	Type     string    `json:"type"`
	From     string    `json:"from,omitempty"`
	To       string    `json:"to,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type VariantValue struct {
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
}

type VariantInput struct {
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Inventory int64           `json:"inventory"`
	Values    []VariantValue  `json:"values,omitempty"`
}

type Variant struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Inventory int64           `json:"inventory"`
	Deleted   bool            `json:"deleted"`
	Values    []VariantValue  `json:"values,omitempty"`
	Product   *Product        `json:"product,omitempty"`
}

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	MinPrice    decimal.Decimal `json:"min_price"`
	MaxPrice    decimal.Decimal `json:"max_price"`
	Inventory   int64           `json:"inventory"`
	Thumbnail   string          `json:"thumbnail"`
	Star        float64         `json:"star"`
	Images      []string        `json:"images,omitempty"`
	Variants    []Variant       `json:"variants,omitempty"`
}

type CreateProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Thumbnail   string          `json:"thumbnail"`
	Images      []string        `json:"images"`
	Variants    []VariantInput  `json:"variants"`
}

type UpdateProductRequest struct {
	ProductID   int64            `json:"product_id"`
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Thumbnail   *string          `json:"thumbnail,omitempty"`
	Star        *float64         `json:"star,omitempty"`
	Images      []string         `json:"images,omitempty"`
	NewVariants []VariantInput   `json:"new_variants,omitempty"`
}

type UpdateVariantRequest struct {
	VariantID int64            `json:"variant_id"`
	Name      *string          `json:"name,omitempty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Inventory *int64           `json:"inventory,omitempty"`
}

type VariantIDRequest struct {
	VariantID int64 `json:"variant_id"`
}

type ProductIDRequest struct {
	ProductID int64 `json:"product_id"`
}

type ProductResponse struct {
	Found   bool     `json:"found"`
	Product *Product `json:"product,omitempty"`
}

type VariantResponse struct {
	Found   bool     `json:"found"`
	Variant *Variant `json:"variant,omitempty"`
}

type InventoryResponse struct {
	ProductID int64 `json:"product_id"`
	Inventory int64 `json:"inventory"`
	// Updated=false: пересчёт не записан, агрегат сохранил прежнее значение.
	Updated bool `json:"updated"`
}

type ListAddressesRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

type SaveAddressRequest struct {
	// ID == 0 создаёт новый адрес.
	ID       int64  `json:"id"`
	Province string `json:"province"`
	District string `json:"district"`
	Ward     string `json:"ward"`
	Address  string `json:"address"`
}

type AddressIDRequest struct {
	ID int64 `json:"id"`
}

type Address struct {
	ID        int64     `json:"id"`
	Province  string    `json:"province"`
	District  string    `json:"district"`
	Ward      string    `json:"ward"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

type AddressResponse struct {
	Found   bool     `json:"found"`
	Address *Address `json:"address,omitempty"`
}

type ListAddressesResponse struct {
	Addresses []Address `json:"addresses"`
}

func toOrder(o domain.Order) *Order {
	out := &Order{
		ID:            o.ID,
		UserID:        o.UserID,
		FullName:      o.FullName,
		Phone:         o.Phone,
		Province:      o.Province,
		District:      o.District,
		Ward:          o.Ward,
		Address:       o.Address,
		PaymentMethod: o.PaymentMethod,
		ShippingPrice: o.ShippingPrice,
		ItemsTotal:    o.ItemsTotal(),
		Items:         make([]OrderItem, 0, len(o.Items)),
		Version:       o.Version,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		DeletedAt:     o.DeletedAt,
	}
	if !o.IsCart() {
		status := string(o.Status)
		out.Status = &status
	}
	for _, item := range o.Items {
		converted := OrderItem{
			ID:        item.ID,
			VariantID: item.VariantID,
			Qty:       item.Qty,
			Price:     item.Price,
		}
		if item.Variant != nil {
			converted.Variant = toVariant(*item.Variant)
		}
		out.Items = append(out.Items, converted)
	}
	return out
}

func toVariant(v domain.ProductVariant) *Variant {
	out := &Variant{
		ID:        v.ID,
		ProductID: v.ProductID,
		Name:      v.Name,
		Price:     v.Price,
		Inventory: v.Inventory,
		Deleted:   v.Deleted(),
	}
	for _, value := range v.Values {
		out.Values = append(out.Values, VariantValue{Attribute: value.Attribute, Value: value.Value})
	}
	if v.Product != nil {
		out.Product = toProduct(*v.Product)
	}
	return out
}

func toProduct(p domain.Product) *Product {
	lo, hi := domain.PriceRange(p, p.Variants)
	out := &Product{
		ID:          p.ID,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Price:       p.Price,
		MinPrice:    lo,
		MaxPrice:    hi,
		Inventory:   p.Inventory,
		Thumbnail:   p.Thumbnail,
		Star:        p.Star,
	}
	for _, image := range p.Images {
		out.Images = append(out.Images, image.Path)
	}
	for _, v := range p.Variants {
		out.Variants = append(out.Variants, *toVariant(v))
	}
	return out
}

func toTimeline(events []domain.TimelineEvent) []TimelineEvent {
	out := make([]TimelineEvent, 0, len(events))
	for _, e := range events {
		out = append(out, TimelineEvent{
			Type:     e.Type,
			From:     e.From.Alias(),
			To:       e.To.Alias(),
			Reason:   e.Reason,
			Occurred: e.Occurred,
		})
	}
	return out
}

func toAddress(a domain.UserAddress) *Address {
	return &Address{
		ID:        a.ID,
		Province:  a.Province,
		District:  a.District,
		Ward:      a.Ward,
		Address:   a.Address,
		CreatedAt: a.CreatedAt,
	}
}

func fromVariantInputs(in []VariantInput) []catalog.VariantInput {
	out := make([]catalog.VariantInput, 0, len(in))
	for _, v := range in {
		values := make([]domain.VariantValue, 0, len(v.Values))
		for _, value := range v.Values {
			values = append(values, domain.VariantValue{Attribute: value.Attribute, Value: value.Value})
		}
		out = append(out, catalog.VariantInput{Name: v.Name, Price: v.Price, Inventory: v.Inventory, Values: values})
	}
	return out
}
