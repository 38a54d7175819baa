package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
// Значения хранятся в БД дословно, поэтому литералы менять нельзя.
type OrderStatus string

const (
	// OrderStatusCart: открытая корзина, в БД хранится как NULL.
	OrderStatusCart OrderStatus = ""
	// OrderStatusProcessing: заказ оформлен и ждёт отгрузки.
	OrderStatusProcessing OrderStatus = "Đang xử lý"
	// OrderStatusShipping: заказ передан в доставку, остатки списаны.
	OrderStatusShipping OrderStatus = "Đang giao hàng"
)

// ParseOrderStatus принимает как литерал статуса, так и короткий алиас (processing/shipping).
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "cart":
		return OrderStatusCart, true
	case "processing", strings.ToLower(string(OrderStatusProcessing)):
		return OrderStatusProcessing, true
	case "shipping", strings.ToLower(string(OrderStatusShipping)):
		return OrderStatusShipping, true
	default:
		return "", false
	}
}

// Alias возвращает ASCII-имя статуса для метрик и логов.
func (s OrderStatus) Alias() string {
	switch s {
	case OrderStatusCart:
		return "cart"
	case OrderStatusProcessing:
		return "processing"
	case OrderStatusShipping:
		return "shipping"
	default:
		return "unknown"
	}
}

// TransitionEffect — побочный эффект, который обязан выполниться вместе с переходом.
type TransitionEffect string

const (
	// EffectNone: переход меняет только статус.
	EffectNone TransitionEffect = "none"
	// EffectDeductStock: перед записью статуса списываются остатки по всем позициям.
	EffectDeductStock TransitionEffect = "deduct_stock"
)

type transitionKey struct {
	from OrderStatus
	to   OrderStatus
}

// statusTransitions: единственный источник разрешённых переходов UpdateStatus.
// Переход корзина -> processing выполняется только через Checkout.
var statusTransitions = map[transitionKey]TransitionEffect{
	{from: OrderStatusProcessing, to: OrderStatusShipping}: EffectDeductStock,
}

// LookupTransition возвращает эффект перехода или ErrTransitionNotAllowed.
func LookupTransition(from, to OrderStatus) (TransitionEffect, error) {
	effect, ok := statusTransitions[transitionKey{from: from, to: to}]
	if !ok {
		return "", ErrTransitionNotAllowed
	}
	return effect, nil
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	ID        int64
	OrderID   int64
	VariantID int64
	Qty       int64
	// Price: цена варианта на момент добавления в корзину.
	Price     decimal.Decimal
	CreatedAt time.Time
	// Variant заполняется только на read-path (гидрация).
	Variant *ProductVariant
}

// Order агрегирует корзину или оформленный заказ вместе с позициями.
type Order struct {
	ID     int64
	UserID int64
	Status OrderStatus

	// Снимок получателя и адреса, не ссылка на UserAddress.
	FullName string
	Phone    string
	Province string
	District string
	Ward     string
	Address  string

	PaymentMethod string
	ShippingPrice decimal.Decimal

	Items     []OrderItem
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// IsCart сообщает, является ли заказ открытой корзиной.
func (o Order) IsCart() bool {
	return o.Status == OrderStatusCart
}

// ShippingAddress возвращает адресный кортеж заказа.
func (o Order) ShippingAddress() AddressTuple {
	return AddressTuple{
		Province: o.Province,
		District: o.District,
		Ward:     o.Ward,
		Address:  o.Address,
	}
}

// ItemsTotal считает сумму позиций без доставки.
func (o Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(item.Qty)))
	}
	return total
}

// CheckoutDetails — данные, которые пользователь передаёт при оформлении.
type CheckoutDetails struct {
	FullName      string
	Phone         string
	Province      string
	District      string
	Ward          string
	Address       string
	PaymentMethod string
	ShippingPrice decimal.Decimal
}

// AddressTuple возвращает адрес из данных оформления.
func (d CheckoutDetails) AddressTuple() AddressTuple {
	return AddressTuple{
		Province: d.Province,
		District: d.District,
		Ward:     d.Ward,
		Address:  d.Address,
	}
}

// ApplyCheckout переносит непустые поля оформления на заказ.
// Стоимость доставки переносится всегда.
func (o *Order) ApplyCheckout(d CheckoutDetails) {
	merge := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	merge(&o.FullName, d.FullName)
	merge(&o.Phone, d.Phone)
	merge(&o.Province, d.Province)
	merge(&o.District, d.District)
	merge(&o.Ward, d.Ward)
	merge(&o.Address, d.Address)
	merge(&o.PaymentMethod, d.PaymentMethod)
	o.ShippingPrice = d.ShippingPrice
}

// OrderFilter описывает выборку заказов для репозитория.
type OrderFilter struct {
	// UserID == 0 означает "все пользователи" (только для админа).
	UserID int64
	// Carts выбирает корзины (status IS NULL) либо оформленные заказы.
	Carts       bool
	WithDeleted bool
	Offset      int
	Limit       int
	SortBy      string
	SortDesc    bool
}
