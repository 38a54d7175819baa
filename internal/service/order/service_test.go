package order_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/query"
	"github.com/vladislavdragonenkov/shop/internal/service/address"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
	"github.com/vladislavdragonenkov/shop/internal/service/inventory"
	"github.com/vladislavdragonenkov/shop/internal/service/order"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

var homeAddress = domain.CheckoutDetails{
	FullName:      "Nguyen Van A",
	Phone:         "0900000001",
	Province:      "Ha Noi",
	District:      "Ba Dinh",
	Ward:          "Kim Ma",
	Address:       "12 Kim Ma",
	PaymentMethod: "cod",
	ShippingPrice: decimal.NewFromInt(30),
}

type fixture struct {
	store   *memory.Store
	catalog *catalog.Service
	orders  *order.Service
}

func newFixture(t *testing.T, opts ...catalog.Option) *fixture {
	t.Helper()
	store := memory.NewStore()
	agg := inventory.NewAggregator(store, nil, nil)
	cat := catalog.NewService(store, append([]catalog.Option{catalog.WithVariantWriteHook(agg.AfterVariantWrite)}, opts...)...)
	addresses := address.NewService(store, nil, nil)

	return &fixture{
		store:   store,
		catalog: cat,
		orders:  order.NewService(store, cat, addresses),
	}
}

func (f *fixture) user(t *testing.T, id int64) {
	t.Helper()
	require.NoError(t, f.store.Users().Create(context.Background(), &domain.User{ID: id, FullName: "Buyer", Phone: "0900"}))
}

// product создаёт товар с одним вариантом и возвращает (productID, variantID).
func (f *fixture) product(t *testing.T, name string, inventory int64) (int64, int64) {
	t.Helper()
	res := f.catalog.CreateProduct(context.Background(), catalog.ProductInput{
		Name:     name,
		Price:    decimal.NewFromInt(100),
		Images:   []string{name + ".jpg"},
		Variants: []catalog.VariantInput{{Name: "default", Price: decimal.NewFromInt(100), Inventory: inventory}},
	})
	product, ok := res.Data()
	require.True(t, ok, "create product: %v", res.Err())
	return product.ID, product.Variants[0].ID
}

func (f *fixture) checkedOut(t *testing.T, userID int64, items map[int64]int64) domain.Order {
	t.Helper()
	ctx := context.Background()
	require.True(t, f.orders.CreateCart(ctx, userID).Found())
	for variantID, qty := range items {
		res := f.orders.AddCartItem(ctx, userID, variantID, qty)
		require.True(t, res.Found(), "add item: %v", res.Err())
	}
	res := f.orders.Checkout(ctx, userID, homeAddress)
	placed, ok := res.Data()
	require.True(t, ok, "checkout: %v", res.Err())
	return placed
}

func (f *fixture) inventory(t *testing.T, productID, variantID int64) (int64, int64) {
	t.Helper()
	ctx := context.Background()
	product, err := f.store.Products().Get(ctx, productID)
	require.NoError(t, err)
	variant, err := f.store.Variants().Get(ctx, variantID, true)
	require.NoError(t, err)
	return product.Inventory, variant.Inventory
}

func TestShipping_DeductsStockAndRecomputesEveryProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)
	productA, variantA := f.product(t, "Ao A", 5)
	productB, variantB := f.product(t, "Ao B", 3)

	placed := f.checkedOut(t, 1, map[int64]int64{variantA: 2, variantB: 1})
	require.Equal(t, domain.OrderStatusProcessing, placed.Status)

	res := f.orders.UpdateStatus(ctx, placed.ID, domain.OrderStatusShipping)
	shipped, ok := res.Data()
	require.True(t, ok, "ship: %v", res.Err())
	assert.Equal(t, domain.OrderStatusShipping, shipped.Status)

	productInv, variantInv := f.inventory(t, productA, variantA)
	assert.Equal(t, int64(3), variantInv)
	assert.Equal(t, int64(3), productInv)

	productInv, variantInv = f.inventory(t, productB, variantB)
	assert.Equal(t, int64(2), variantInv)
	assert.Equal(t, int64(2), productInv)

	timeline := f.orders.Timeline(ctx, placed.ID)
	events, ok := timeline.Data()
	require.True(t, ok)
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventCartCreated, events[0].Type)
	assert.Equal(t, domain.EventOrderCheckedOut, events[1].Type)
	assert.Equal(t, domain.OrderStatusProcessing, events[2].From)
	assert.Equal(t, domain.OrderStatusShipping, events[2].To)
}

func TestUpdateStatus_DisallowedTransitionsAreNoops(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)
	productID, variantID := f.product(t, "Ao", 5)

	require.True(t, f.orders.CreateCart(ctx, 1).Found())
	require.True(t, f.orders.AddCartItem(ctx, 1, variantID, 1).Found())
	cart, err := f.store.Orders().FindOpenCart(ctx, 1)
	require.NoError(t, err)

	assert.True(t, f.orders.UpdateStatus(ctx, cart.ID, domain.OrderStatusShipping).IsEmpty(), "cart cannot ship")
	assert.True(t, f.orders.UpdateStatus(ctx, cart.ID, domain.OrderStatusProcessing).IsEmpty(), "checkout is the only way to processing")

	after, err := f.store.Orders().Get(ctx, cart.ID, false)
	require.NoError(t, err)
	assert.Equal(t, cart.Version, after.Version)
	assert.True(t, after.IsCart())

	res := f.orders.Checkout(ctx, 1, homeAddress)
	placed, ok := res.Data()
	require.True(t, ok)
	assert.True(t, f.orders.UpdateStatus(ctx, placed.ID, domain.OrderStatusProcessing).IsEmpty())
	require.True(t, f.orders.UpdateStatus(ctx, placed.ID, domain.OrderStatusShipping).Found())
	assert.True(t, f.orders.UpdateStatus(ctx, placed.ID, domain.OrderStatusShipping).IsEmpty(), "second shipping must not deduct again")
	assert.True(t, f.orders.UpdateStatus(ctx, placed.ID, domain.OrderStatusProcessing).IsEmpty())
	assert.True(t, f.orders.UpdateStatus(ctx, 404, domain.OrderStatusShipping).IsEmpty())

	productInv, variantInv := f.inventory(t, productID, variantID)
	assert.Equal(t, int64(4), variantInv)
	assert.Equal(t, int64(4), productInv)
}

func TestUpdateStatus_ShippingDeductsBeyondStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)
	productID, variantID := f.product(t, "Ao", 1)
	placed := f.checkedOut(t, 1, map[int64]int64{variantID: 2})

	res := f.orders.UpdateStatus(ctx, placed.ID, domain.OrderStatusShipping)
	shipped, ok := res.Data()
	require.True(t, ok, "update status: %v", res.Err())
	assert.Equal(t, domain.OrderStatusShipping, shipped.Status)

	productInv, variantInv := f.inventory(t, productID, variantID)
	assert.Equal(t, int64(-1), variantInv)
	assert.Equal(t, int64(-1), productInv)
}

func TestUpdateStatus_StockGuardRollsBack(t *testing.T) {
	f := newFixture(t, catalog.WithStockGuard(true))
	ctx := context.Background()
	f.user(t, 1)
	productA, variantA := f.product(t, "Ao A", 5)
	productB, variantB := f.product(t, "Ao B", 1)

	placed := f.checkedOut(t, 1, map[int64]int64{variantA: 2, variantB: 2})
	outboxBefore, err := f.store.Outbox().Stats(ctx)
	require.NoError(t, err)

	res := f.orders.UpdateStatus(ctx, placed.ID, domain.OrderStatusShipping)
	require.True(t, res.Failed())
	require.ErrorIs(t, res.Err(), domain.ErrInsufficientStock)

	stored, err := f.store.Orders().Get(ctx, placed.ID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, stored.Status)

	productInv, variantInv := f.inventory(t, productA, variantA)
	assert.Equal(t, int64(5), variantInv)
	assert.Equal(t, int64(5), productInv)
	_, variantInv = f.inventory(t, productB, variantB)
	assert.Equal(t, int64(1), variantInv)

	outboxAfter, err := f.store.Outbox().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, outboxBefore.PendingCount, outboxAfter.PendingCount)
}

func TestUpdateStatus_ConcurrentShippingDeductsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)
	productID, variantID := f.product(t, "Ao", 10)
	placed := f.checkedOut(t, 1, map[int64]int64{variantID: 3})

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		shipped int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.orders.UpdateStatus(ctx, placed.ID, domain.OrderStatusShipping).Found() {
				mu.Lock()
				shipped++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, shipped)
	productInv, variantInv := f.inventory(t, productID, variantID)
	assert.Equal(t, int64(7), variantInv)
	assert.Equal(t, int64(7), productInv)
}

func TestCheckout_ReconcilesAddressOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)
	_, variantID := f.product(t, "Ao", 10)

	f.checkedOut(t, 1, map[int64]int64{variantID: 1})
	f.checkedOut(t, 1, map[int64]int64{variantID: 1})

	addresses, err := f.store.Addresses().ListByUser(ctx, 1, 0, 0)
	require.NoError(t, err)
	require.Len(t, addresses, 1)
	assert.Equal(t, homeAddress.AddressTuple(), addresses[0].AddressTuple)
}

func TestCheckout_EmptyAddressIsReconciledToo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)
	_, variantID := f.product(t, "Ao", 10)

	bare := domain.CheckoutDetails{FullName: "Nguyen Van A", Phone: "0900000001", PaymentMethod: "cod"}
	for i := 0; i < 2; i++ {
		require.True(t, f.orders.CreateCart(ctx, 1).Found())
		require.True(t, f.orders.AddCartItem(ctx, 1, variantID, 1).Found())
		res := f.orders.Checkout(ctx, 1, bare)
		require.True(t, res.Found(), "checkout: %v", res.Err())
	}

	addresses, err := f.store.Addresses().ListByUser(ctx, 1, 0, 0)
	require.NoError(t, err)
	require.Len(t, addresses, 1)
	assert.True(t, addresses[0].AddressTuple.IsZero())
}

func TestCheckout_WithoutCartWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)

	res := f.orders.Checkout(ctx, 1, homeAddress)
	assert.True(t, res.IsEmpty())

	addresses, err := f.store.Addresses().ListByUser(ctx, 1, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, addresses)

	pending, err := f.store.Outbox().PullPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

// Две открытые корзины не сливаются: оформляется самая свежая, старая остаётся корзиной.
func TestCheckout_DuplicateCartsUseMostRecent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)

	first, ok := f.orders.CreateCart(ctx, 1).Data()
	require.True(t, ok)
	second, ok := f.orders.CreateCart(ctx, 1).Data()
	require.True(t, ok)
	require.NotEqual(t, first.ID, second.ID)

	placed, ok := f.orders.Checkout(ctx, 1, homeAddress).Data()
	require.True(t, ok)
	assert.Equal(t, second.ID, placed.ID)

	stale, err := f.store.Orders().Get(ctx, first.ID, false)
	require.NoError(t, err)
	assert.True(t, stale.IsCart())

	cart, err := f.store.Orders().FindOpenCart(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, cart.ID)
}

func TestCreateCart_PrefillsProfileAndLatestAddress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)
	_, variantID := f.product(t, "Ao", 10)

	f.checkedOut(t, 1, map[int64]int64{variantID: 1})

	cart, ok := f.orders.CreateCart(ctx, 1).Data()
	require.True(t, ok)
	assert.Equal(t, "Buyer", cart.FullName)
	assert.Equal(t, homeAddress.AddressTuple(), cart.ShippingAddress())

	assert.True(t, f.orders.CreateCart(ctx, 99).IsEmpty(), "unknown user")
}

func TestAddCartItem_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)
	_, variantID := f.product(t, "Ao", 10)

	res := f.orders.AddCartItem(ctx, 1, variantID, 0)
	require.ErrorIs(t, res.Err(), domain.ErrItemQtyInvalid)

	assert.True(t, f.orders.AddCartItem(ctx, 1, variantID, 1).IsEmpty(), "no open cart")

	require.True(t, f.orders.CreateCart(ctx, 1).Found())
	assert.True(t, f.orders.AddCartItem(ctx, 1, 404, 1).IsEmpty(), "unknown variant")
}

func TestGetOrderByID_Hydrates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)
	productID, variantID := f.product(t, "Ao", 10)
	placed := f.checkedOut(t, 1, map[int64]int64{variantID: 2})

	require.True(t, f.catalog.SoftDeleteVariant(ctx, variantID).Found())

	got, ok := f.orders.GetOrderByID(ctx, placed.ID).Data()
	require.True(t, ok)
	require.Len(t, got.Items, 1)
	item := got.Items[0]
	require.NotNil(t, item.Variant, "soft-deleted variant still hydrates")
	require.NotNil(t, item.Variant.Product)
	assert.Equal(t, productID, item.Variant.Product.ID)
	assert.Len(t, item.Variant.Product.Images, 1)
	assert.True(t, got.ItemsTotal().Equal(decimal.NewFromInt(200)))

	assert.True(t, f.orders.GetOrderByID(ctx, 404).IsEmpty())
}

func TestGetAllOrders_ScopeAndDeletedVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, 1)
	f.user(t, 2)
	_, variantID := f.product(t, "Ao", 50)

	mine := f.checkedOut(t, 1, map[int64]int64{variantID: 1})
	f.checkedOut(t, 1, map[int64]int64{variantID: 1})
	f.checkedOut(t, 2, map[int64]int64{variantID: 1})
	require.True(t, f.orders.CreateCart(ctx, 1).Found())

	list, ok := f.orders.GetAllOrders(ctx, query.Criteria{}, false, false, 1).Data()
	require.True(t, ok)
	assert.Equal(t, 2, list.Count)
	for _, o := range list.Items {
		assert.Equal(t, int64(1), o.UserID)
		assert.False(t, o.IsCart())
	}

	carts, ok := f.orders.GetAllOrders(ctx, query.Criteria{}, true, false, 1).Data()
	require.True(t, ok)
	assert.Equal(t, 1, carts.Count)

	all, ok := f.orders.GetAllOrders(ctx, query.Criteria{}, false, true, 1).Data()
	require.True(t, ok)
	assert.Equal(t, 3, all.Count)

	require.True(t, f.orders.SoftDelete(ctx, mine.ID).Found())

	visible, _ := f.orders.GetAllOrders(ctx, query.Criteria{WithDeleted: true}, false, false, 1).Data()
	assert.Equal(t, 1, visible.Count, "customer never sees deleted orders")

	admin, _ := f.orders.GetAllOrders(ctx, query.Criteria{WithDeleted: true}, false, true, 0).Data()
	assert.Equal(t, 3, admin.Count)

	paged, _ := f.orders.GetAllOrders(ctx, query.Criteria{PageSize: 1}, false, true, 0).Data()
	assert.Len(t, paged.Items, 1)
	assert.Equal(t, 2, paged.Count)

	assert.True(t, f.orders.GetOrderByID(ctx, mine.ID).IsEmpty())
	assert.True(t, f.orders.GetOrderForAdmin(ctx, mine.ID).Found())
	require.True(t, f.orders.Restore(ctx, mine.ID).Found())
	assert.True(t, f.orders.GetOrderByID(ctx, mine.ID).Found())

	res := f.orders.GetAllOrders(ctx, query.Criteria{}, false, false, 0)
	require.ErrorIs(t, res.Err(), domain.ErrUserIDRequired)
}
