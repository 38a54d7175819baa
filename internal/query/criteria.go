// Package query переводит параметры списка (страница, размер, сортировка, видимость удалённых)
// в фильтр репозитория.
package query

import (
	"strings"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100

	defaultSortField = "created_at"
)

// sortableOrderFields — разрешённые поля сортировки заказов.
var sortableOrderFields = map[string]string{
	"id":         "id",
	"created_at": "created_at",
	"createdat":  "created_at",
	"updated_at": "updated_at",
	"updatedat":  "updated_at",
	"status":     "status",
}

// Criteria — параметры запроса списка.
type Criteria struct {
	Page     int
	PageSize int
	// Sort в форме "field" или "-field" (по убыванию).
	Sort        string
	WithDeleted bool
}

// Skip возвращает смещение для текущей страницы.
func (c Criteria) Skip() int {
	return (c.page() - 1) * c.Limit()
}

// Limit возвращает размер страницы с учётом значений по умолчанию и верхней границы.
func (c Criteria) Limit() int {
	switch {
	case c.PageSize <= 0:
		return DefaultPageSize
	case c.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return c.PageSize
	}
}

func (c Criteria) page() int {
	if c.Page <= 0 {
		return DefaultPage
	}
	return c.Page
}

// Order возвращает поле сортировки и направление. Неизвестные поля заменяются на created_at DESC.
func (c Criteria) Order() (field string, desc bool) {
	raw := strings.ToLower(strings.TrimSpace(c.Sort))
	if raw == "" {
		return defaultSortField, true
	}
	if strings.HasPrefix(raw, "-") {
		desc = true
		raw = strings.TrimPrefix(raw, "-")
	}
	field, ok := sortableOrderFields[raw]
	if !ok {
		return defaultSortField, true
	}
	return field, desc
}

// Scope описывает, кто запрашивает список и какую его часть.
type Scope struct {
	UserID  int64
	IsAdmin bool
	// Carts выбирает корзины вместо оформленных заказов.
	Carts bool
}

// OrderFilter сливает критерии и scope в фильтр репозитория.
// Видимость удалённых доступна только админу; не-админ всегда ограничен своим UserID.
func OrderFilter(c Criteria, scope Scope) domain.OrderFilter {
	field, desc := c.Order()
	filter := domain.OrderFilter{
		UserID:   scope.UserID,
		Carts:    scope.Carts,
		Offset:   c.Skip(),
		Limit:    c.Limit(),
		SortBy:   field,
		SortDesc: desc,
	}
	if scope.IsAdmin && c.WithDeleted {
		filter.WithDeleted = true
	}
	return filter
}

// AddressPage возвращает offset/limit для списка адресов.
func AddressPage(c Criteria) (offset, limit int) {
	return c.Skip(), c.Limit()
}
