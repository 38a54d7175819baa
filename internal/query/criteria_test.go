package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCriteriaPaging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		criteria  Criteria
		wantSkip  int
		wantLimit int
	}{
		{name: "defaults", criteria: Criteria{}, wantSkip: 0, wantLimit: DefaultPageSize},
		{name: "third page", criteria: Criteria{Page: 3, PageSize: 10}, wantSkip: 20, wantLimit: 10},
		{name: "clamped size", criteria: Criteria{Page: 2, PageSize: 1000}, wantSkip: MaxPageSize, wantLimit: MaxPageSize},
		{name: "negative page", criteria: Criteria{Page: -4, PageSize: 5}, wantSkip: 0, wantLimit: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantSkip, tt.criteria.Skip())
			assert.Equal(t, tt.wantLimit, tt.criteria.Limit())
		})
	}
}

func TestCriteriaOrder(t *testing.T) {
	t.Parallel()

	field, desc := Criteria{}.Order()
	assert.Equal(t, "created_at", field)
	assert.True(t, desc)

	field, desc = Criteria{Sort: "id"}.Order()
	assert.Equal(t, "id", field)
	assert.False(t, desc)

	field, desc = Criteria{Sort: "-updatedAt"}.Order()
	assert.Equal(t, "updated_at", field)
	assert.True(t, desc)

	field, desc = Criteria{Sort: "name; DROP TABLE orders"}.Order()
	assert.Equal(t, "created_at", field)
	assert.True(t, desc)
}

func TestOrderFilter_Scope(t *testing.T) {
	t.Parallel()

	criteria := Criteria{Page: 2, PageSize: 5, Sort: "-id", WithDeleted: true}

	customer := OrderFilter(criteria, Scope{UserID: 7, Carts: true})
	assert.Equal(t, int64(7), customer.UserID)
	assert.True(t, customer.Carts)
	assert.False(t, customer.WithDeleted, "only admin may see soft-deleted orders")
	assert.Equal(t, 5, customer.Offset)
	assert.Equal(t, 5, customer.Limit)
	assert.Equal(t, "id", customer.SortBy)
	assert.True(t, customer.SortDesc)

	admin := OrderFilter(criteria, Scope{IsAdmin: true})
	assert.True(t, admin.WithDeleted)
	assert.Zero(t, admin.UserID)
	assert.False(t, admin.Carts)

	adminNoFlag := OrderFilter(Criteria{}, Scope{IsAdmin: true})
	assert.False(t, adminNoFlag.WithDeleted)
}
