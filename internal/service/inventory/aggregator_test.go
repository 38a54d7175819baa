package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

func seedProduct(t *testing.T, store domain.Store, inventories ...int64) (domain.Product, []domain.ProductVariant) {
	t.Helper()
	ctx := context.Background()

	product := domain.Product{Name: "Ao khoac", Slug: "ao-khoac", Price: decimal.NewFromInt(300)}
	require.NoError(t, store.Products().Create(ctx, &product))

	variants := make([]domain.ProductVariant, 0, len(inventories))
	for _, inv := range inventories {
		variant := domain.ProductVariant{ProductID: product.ID, Name: "v", Price: decimal.NewFromInt(300), Inventory: inv}
		require.NoError(t, store.Variants().Create(ctx, &variant))
		variants = append(variants, variant)
	}
	return product, variants
}

func TestAggregator_TotalInventory(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	agg := NewAggregator(store, nil, nil)

	product, variants := seedProduct(t, store, 4, 6, 1)

	total, err := agg.TotalInventory(ctx, product.ID)
	require.NoError(t, err)
	require.Equal(t, int64(11), total)

	again, err := agg.TotalInventory(ctx, product.ID)
	require.NoError(t, err)
	require.Equal(t, total, again, "repeated read without writes is stable")

	_, err = store.Variants().SoftDelete(ctx, variants[1].ID)
	require.NoError(t, err)
	total, err = agg.TotalInventory(ctx, product.ID)
	require.NoError(t, err)
	require.Equal(t, int64(5), total)

	empty, _ := seedProduct(t, store)
	total, err = agg.TotalInventory(ctx, empty.ID)
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestAggregator_RecomputeConvergesAfterEachWrite(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	reg := prometheus.NewRegistry()
	agg := NewAggregator(store, nil, metrics.NewShopMetricsWithRegisterer(reg))

	product, variants := seedProduct(t, store, 2)

	writes := []int64{7, 0, 13, 3}
	for _, inv := range writes {
		variant := variants[0]
		variant.Inventory = inv
		if err := store.Variants().Update(ctx, variant); err != nil {
			t.Errorf("update variant: %v", err)
			return
		}
		agg.AfterVariantWrite(ctx, product.ID)

		stored, err := store.Products().Get(ctx, product.ID)
		require.NoError(t, err)
		require.Equal(t, inv, stored.Inventory)
	}
}

func TestAggregator_RecomputeSelfCorrectsStaleAggregate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	agg := NewAggregator(store, nil, nil)

	product, _ := seedProduct(t, store, 3, 3)
	require.NoError(t, store.Products().SetInventory(ctx, product.ID, 999))

	total, ok := agg.Recompute(ctx, product.ID)
	require.True(t, ok)
	require.Equal(t, int64(6), total)
}

func TestAggregator_RecomputeMany(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	agg := NewAggregator(store, nil, nil)

	first, _ := seedProduct(t, store, 1, 2)
	second, _ := seedProduct(t, store, 5)

	agg.RecomputeMany(ctx, []int64{first.ID, second.ID, first.ID})

	for id, want := range map[int64]int64{first.ID: 3, second.ID: 5} {
		stored, err := store.Products().Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, stored.Inventory)
	}
}

func TestAggregator_ConcurrentWritesConverge(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	agg := NewAggregator(store, nil, nil)

	product, variants := seedProduct(t, store, 50, 50)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(variant domain.ProductVariant) {
			defer wg.Done()
			if _, err := store.Variants().Deduct(ctx, variant.ID, 1); err == nil {
				agg.AfterVariantWrite(ctx, product.ID)
			}
		}(variants[i%2])
	}
	wg.Wait()

	// После затихания последний пересчёт видит итоговую сумму.
	agg.Recompute(ctx, product.ID)
	stored, err := store.Products().Get(ctx, product.ID)
	require.NoError(t, err)
	require.Equal(t, int64(80), stored.Inventory)
}

// failingVariants ломает SumInventory, чтобы проверить поглощение ошибки.
type failingVariants struct {
	domain.VariantRepository
}

func (failingVariants) SumInventory(context.Context, int64) (int64, error) {
	return 0, errors.New("db down")
}

type failingStore struct {
	domain.Store
}

func (s failingStore) Variants() domain.VariantRepository {
	return failingVariants{VariantRepository: s.Store.Variants()}
}

func (s failingStore) WithinTx(ctx context.Context, fn func(tx domain.Store) error) error {
	return s.Store.WithinTx(ctx, func(tx domain.Store) error {
		return fn(failingStore{Store: tx})
	})
}

// gatedVariants задерживает первый SumInventory после чтения суммы,
// пока тест не откроет gate.
type gatedVariants struct {
	domain.VariantRepository
	gate *sumGate
}

type sumGate struct {
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (v gatedVariants) SumInventory(ctx context.Context, productID int64) (int64, error) {
	total, err := v.VariantRepository.SumInventory(ctx, productID)
	v.gate.once.Do(func() {
		close(v.gate.read)
		<-v.gate.release
	})
	return total, err
}

type gatedStore struct {
	domain.Store
	gate *sumGate
}

func (s gatedStore) Variants() domain.VariantRepository {
	return gatedVariants{VariantRepository: s.Store.Variants(), gate: s.gate}
}

func (s gatedStore) WithinTx(ctx context.Context, fn func(tx domain.Store) error) error {
	return s.Store.WithinTx(ctx, func(tx domain.Store) error {
		return fn(gatedStore{Store: tx, gate: s.gate})
	})
}

func TestAggregator_SlowRecomputeDoesNotOverwriteNewerSum(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	product, variants := seedProduct(t, store, 5)

	gate := &sumGate{read: make(chan struct{}), release: make(chan struct{})}
	agg := NewAggregator(gatedStore{Store: store, gate: gate}, nil, nil)

	slowDone := make(chan struct{})
	go func() {
		defer close(slowDone)
		agg.Recompute(ctx, product.ID)
	}()
	<-gate.read

	// Пока первый пересчёт держит прочитанную сумму 5, вариант меняется на 9
	// и срабатывает второй пересчёт.
	fastDone := make(chan struct{})
	go func() {
		defer close(fastDone)
		variant := variants[0]
		variant.Inventory = 9
		if err := store.Variants().Update(ctx, variant); err != nil {
			t.Errorf("update variant: %v", err)
			return
		}
		agg.AfterVariantWrite(ctx, product.ID)
	}()

	select {
	case <-fastDone:
	case <-time.After(100 * time.Millisecond):
	}
	close(gate.release)
	<-slowDone
	<-fastDone

	stored, err := store.Products().Get(ctx, product.ID)
	require.NoError(t, err)
	total, err := store.Variants().SumInventory(ctx, product.ID)
	require.NoError(t, err)
	require.Equal(t, int64(9), total)
	require.Equal(t, total, stored.Inventory, "aggregate must converge to the latest sum")
}

func TestAggregator_RecomputeFailureKeepsPreviousValue(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	product, _ := seedProduct(t, store, 4)
	require.NoError(t, store.Products().SetInventory(ctx, product.ID, 4))

	agg := NewAggregator(failingStore{Store: store}, nil, nil)

	variants, err := store.Variants().ListByProduct(ctx, product.ID, false)
	require.NoError(t, err)
	variant := variants[0]
	variant.Inventory = 10
	require.NoError(t, store.Variants().Update(ctx, variant))

	require.NotPanics(t, func() {
		_, ok := agg.Recompute(ctx, product.ID)
		require.False(t, ok)
	})

	stored, err := store.Products().Get(ctx, product.ID)
	require.NoError(t, err)
	require.Equal(t, int64(4), stored.Inventory)

	_, ok := NewAggregator(store, nil, nil).Recompute(ctx, 404)
	require.False(t, ok, "missing product is reported, not raised")
}

func TestAggregator_PublishesOnlyChanges(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	agg := NewAggregator(store, nil, nil)
	product, _ := seedProduct(t, store, 3, 2)

	_, ok := agg.Recompute(ctx, product.ID)
	require.True(t, ok)
	_, ok = agg.Recompute(ctx, product.ID)
	require.True(t, ok)

	pending, err := store.Outbox().PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1, "unchanged aggregate is not republished")
	require.Equal(t, domain.EventProductInventoryUpdated, pending[0].EventType)
	require.JSONEq(t, `{"product_id":1,"previous":0,"inventory":5}`, string(pending[0].Payload))
}
