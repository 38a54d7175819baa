package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/lock"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/address"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
	"github.com/vladislavdragonenkov/shop/internal/service/inventory"
	"github.com/vladislavdragonenkov/shop/internal/service/order"
)

// Dependencies содержит доменные сервисы, собранные поверх одного хранилища.
type Dependencies struct {
	Store      domain.Store
	Metrics    *metrics.ShopMetrics
	Aggregator *inventory.Aggregator
	Catalog    *catalog.Service
	Addresses  *address.Service
	Orders     *order.Service
	Logger     *log.Entry
}

// NewDependencies связывает сервисы: запись варианта в каталоге пересчитывает
// агрегат товара, отгрузка списывает остатки через каталог.
// catalogOpts добавляются после базовых опций каталога.
func NewDependencies(store domain.Store, locker lock.Locker, m *metrics.ShopMetrics, logger *log.Entry, catalogOpts ...catalog.Option) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	if locker == nil {
		locker = lock.NewKeyed()
	}

	aggregator := inventory.NewAggregator(store, logger.WithField("component", "inventory"), m)
	catalogSvc := catalog.NewService(store, append([]catalog.Option{
		catalog.WithLogger(logger.WithField("component", "catalog")),
		catalog.WithVariantWriteHook(aggregator.AfterVariantWrite),
	}, catalogOpts...)...)
	addresses := address.NewService(store, logger.WithField("component", "address"), m)
	orders := order.NewService(store, catalogSvc, addresses,
		order.WithLogger(logger.WithField("component", "order-lifecycle")),
		order.WithMetrics(m),
		order.WithLocker(locker),
	)

	return &Dependencies{
		Store:      store,
		Metrics:    m,
		Aggregator: aggregator,
		Catalog:    catalogSvc,
		Addresses:  addresses,
		Orders:     orders,
		Logger:     logger,
	}
}
