package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product описывает карточку товара. Inventory производное значение,
// источник истины для остатков это варианты.
type Product struct {
	ID          int64
	Name        string
	Slug        string
	Description string
	Price       decimal.Decimal
	Inventory   int64
	Thumbnail   string
	Star        float64
	Images      []ProductImage
	Variants    []ProductVariant
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// ProductImage хранит только путь к файлу.
type ProductImage struct {
	ID        int64
	ProductID int64
	Path      string
}

// VariantValue — значение атрибута варианта (например, цвет = красный).
type VariantValue struct {
	ID        int64
	VariantID int64
	Attribute string
	Value     string
}

// ProductVariant — конкретная продаваемая вариация товара со своим остатком.
type ProductVariant struct {
	ID        int64
	ProductID int64
	Name      string
	Price     decimal.Decimal
	Inventory int64
	Values    []VariantValue
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time

	// Product заполняется на read-path.
	Product *Product
}

// Deleted сообщает, помечен ли вариант как удалённый.
func (v ProductVariant) Deleted() bool {
	return v.DeletedAt != nil
}

// Validate проверяет базовые инварианты варианта.
func (v ProductVariant) Validate() error {
	if v.Price.IsNegative() {
		return ErrPriceNegative
	}
	if v.Inventory < 0 {
		return ErrInventoryNegative
	}
	return nil
}

// PriceRange возвращает минимальную и максимальную цену среди активных вариантов.
// Без вариантов диапазон вырождается в цену товара.
func PriceRange(product Product, variants []ProductVariant) (decimal.Decimal, decimal.Decimal) {
	var (
		lo, hi decimal.Decimal
		seen   bool
	)
	for _, v := range variants {
		if v.Deleted() {
			continue
		}
		if !seen {
			lo, hi, seen = v.Price, v.Price, true
			continue
		}
		if v.Price.LessThan(lo) {
			lo = v.Price
		}
		if v.Price.GreaterThan(hi) {
			hi = v.Price
		}
	}
	if !seen {
		return product.Price, product.Price
	}
	return lo, hi
}

// StockDeduction описывает списание qty единиц с варианта.
type StockDeduction struct {
	VariantID int64
	Qty       int64
}
