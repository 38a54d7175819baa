// Package order управляет жизненным циклом заказа: корзина, оформление, отгрузка.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/lock"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/query"
)

// StockDeductor списывает остатки внутри транзакции и сообщает о записи после commit.
type StockDeductor interface {
	DeductStock(ctx context.Context, tx domain.Store, deductions []domain.StockDeduction) ([]int64, error)
	AfterStockWrite(ctx context.Context, productIDs []int64)
}

// AddressReconciler сохраняет адрес оформления в адресной книге без дублей.
type AddressReconciler interface {
	Reconcile(ctx context.Context, userID int64, tuple domain.AddressTuple) (domain.UserAddress, bool, error)
}

// OrderList: страница заказов и общее число подходящих под фильтр.
type OrderList struct {
	Items []domain.Order
	Count int
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.ShopMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLocker заменяет in-process блокировки (например, на Redis).
func WithLocker(locker lock.Locker) Option {
	return func(s *Service) {
		if locker != nil {
			s.locker = locker
		}
	}
}

// Service — Order Lifecycle Manager.
type Service struct {
	store     domain.Store
	stock     StockDeductor
	addresses AddressReconciler
	locker    lock.Locker
	logger    *log.Entry
	metrics   *metrics.ShopMetrics
}

// NewService создаёт сервис заказов.
func NewService(store domain.Store, stock StockDeductor, addresses AddressReconciler, opts ...Option) *Service {
	s := &Service{
		store:     store,
		stock:     stock,
		addresses: addresses,
		locker:    lock.NewKeyed(),
		logger:    log.New().WithField("component", "order-lifecycle"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCart открывает новую корзину с данными профиля и последним адресом пользователя.
// Существующая корзина не проверяется: несколько открытых корзин возможны,
// Checkout работает с самой свежей.
func (s *Service) CreateCart(ctx context.Context, userID int64) domain.Result[domain.Order] {
	logger := s.logger.WithField("user_id", userID)

	user, err := s.store.Users().Get(ctx, userID)
	if err != nil {
		return s.result(logger, err, "load user for cart")
	}

	cart := domain.Order{
		UserID:   userID,
		FullName: user.FullName,
		Phone:    user.Phone,
	}
	latest, err := s.store.Addresses().Latest(ctx, userID)
	switch {
	case err == nil:
		cart.Province = latest.Province
		cart.District = latest.District
		cart.Ward = latest.Ward
		cart.Address = latest.Address
	case !errors.Is(err, domain.ErrAddressNotFound):
		return s.result(logger, err, "load latest address")
	}

	err = s.store.WithinTx(ctx, func(tx domain.Store) error {
		if err := tx.Orders().Create(ctx, &cart); err != nil {
			return fmt.Errorf("create cart: %w", err)
		}
		return s.record(ctx, tx, cart, domain.EventCartCreated, domain.OrderStatusCart, "")
	})
	if err != nil {
		return s.result(logger, err, "create cart")
	}

	s.metrics.RecordCartCreated()
	logger.WithField("order_id", cart.ID).Info("cart created")
	return domain.Ok(cart)
}

// AddCartItem добавляет вариант в открытую корзину пользователя по текущей цене варианта.
func (s *Service) AddCartItem(ctx context.Context, userID, variantID, qty int64) domain.Result[domain.Order] {
	if qty <= 0 {
		return domain.Fail[domain.Order](domain.ErrItemQtyInvalid)
	}
	logger := s.logger.WithFields(log.Fields{"user_id": userID, "variant_id": variantID})

	release, err := s.locker.Acquire(ctx, lock.UserKey(userID))
	if err != nil {
		return s.result(logger, err, "acquire cart lock")
	}
	defer release()

	var cartID int64
	err = s.store.WithinTx(ctx, func(tx domain.Store) error {
		cart, err := tx.Orders().FindOpenCart(ctx, userID)
		if err != nil {
			return err
		}
		variant, err := tx.Variants().Get(ctx, variantID, false)
		if err != nil {
			return err
		}
		cartID = cart.ID
		return tx.Orders().AddItem(ctx, &domain.OrderItem{
			OrderID:   cart.ID,
			VariantID: variant.ID,
			Qty:       qty,
			Price:     variant.Price,
		})
	})
	if err != nil {
		return s.result(logger, err, "add cart item")
	}
	return s.GetOrderByID(ctx, cartID)
}

// Checkout переносит данные оформления на самую свежую корзину и переводит её в processing.
// Без корзины возвращает пустой результат и ничего не пишет.
// Сверка адреса с кортежем из details выполняется после commit всегда, даже для пустого адреса.
// Её сбой логируется и не отменяет оформление.
func (s *Service) Checkout(ctx context.Context, userID int64, details domain.CheckoutDetails) domain.Result[domain.Order] {
	logger := s.logger.WithField("user_id", userID)

	release, err := s.locker.Acquire(ctx, lock.UserKey(userID))
	if err != nil {
		s.metrics.RecordCheckout(metrics.ResultFailed)
		return s.result(logger, err, "acquire checkout lock")
	}
	defer release()

	var order domain.Order
	err = s.store.WithinTx(ctx, func(tx domain.Store) error {
		cart, err := tx.Orders().FindOpenCart(ctx, userID)
		if err != nil {
			return err
		}

		cart.ApplyCheckout(details)
		cart.Status = domain.OrderStatusProcessing
		if err := tx.Orders().Save(ctx, &cart); err != nil {
			return fmt.Errorf("save checked out order: %w", err)
		}
		if err := s.record(ctx, tx, cart, domain.EventOrderCheckedOut, domain.OrderStatusCart, "checkout"); err != nil {
			return err
		}
		order = cart
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			s.metrics.RecordCheckout(metrics.ResultEmpty)
			logger.Debug("checkout without open cart")
			return domain.Empty[domain.Order]()
		}
		s.metrics.RecordCheckout(metrics.ResultFailed)
		return s.result(logger, err, "checkout")
	}

	logger = logger.WithField("order_id", order.ID)
	if _, _, err := s.addresses.Reconcile(ctx, userID, details.AddressTuple()); err != nil {
		logger.WithError(err).Warn("address reconciliation failed after checkout")
	}

	s.metrics.RecordCheckout(metrics.ResultOK)
	logger.Info("order checked out")
	return domain.Ok(order)
}

// UpdateStatus выполняет переход только если он есть в таблице переходов.
// Переход processing -> shipping списывает остатки по всем позициям в той же транзакции,
// что и запись статуса. Любой другой переход даёт пустой результат без изменений.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, next domain.OrderStatus) domain.Result[domain.Order] {
	logger := s.logger.WithFields(log.Fields{"order_id": orderID, "to": next.Alias()})

	release, err := s.locker.Acquire(ctx, lock.OrderKey(orderID))
	if err != nil {
		return s.result(logger, err, "acquire order lock")
	}
	defer release()

	var (
		updated  domain.Order
		from     domain.OrderStatus
		touched  []int64
		deducted int64
	)
	err = s.store.WithinTx(ctx, func(tx domain.Store) error {
		order, err := tx.Orders().Get(ctx, orderID, false)
		if err != nil {
			return err
		}
		from = order.Status

		effect, err := domain.LookupTransition(order.Status, next)
		if err != nil {
			return err
		}

		if effect == domain.EffectDeductStock {
			deductions := make([]domain.StockDeduction, 0, len(order.Items))
			for _, item := range order.Items {
				deductions = append(deductions, domain.StockDeduction{VariantID: item.VariantID, Qty: item.Qty})
				deducted += item.Qty
			}
			if touched, err = s.stock.DeductStock(ctx, tx, deductions); err != nil {
				return err
			}
		}

		order.Status = next
		if err := tx.Orders().Save(ctx, &order); err != nil {
			return fmt.Errorf("save order status: %w", err)
		}
		if err := s.record(ctx, tx, order, domain.EventOrderStatusChanged, from, ""); err != nil {
			return err
		}
		updated = order
		return nil
	})

	switch {
	case errors.Is(err, domain.ErrTransitionNotAllowed):
		s.metrics.RecordTransition(from.Alias(), next.Alias(), metrics.ResultNoop)
		logger.WithField("from", from.Alias()).Debug("status transition ignored")
		return domain.Empty[domain.Order]()
	case errors.Is(err, domain.ErrInsufficientStock):
		s.metrics.RecordTransition(from.Alias(), next.Alias(), metrics.ResultNoStock)
		logger.WithError(err).Warn("shipping rejected, stock unchanged")
		return domain.Fail[domain.Order](err)
	case err != nil:
		if !domain.IsNotFound(err) {
			s.metrics.RecordTransition(from.Alias(), next.Alias(), metrics.ResultFailed)
		}
		return s.result(logger, err, "update status")
	}

	s.stock.AfterStockWrite(ctx, touched)
	s.metrics.RecordStockDeducted(deducted)
	s.metrics.RecordTransition(from.Alias(), next.Alias(), metrics.ResultOK)
	logger.WithField("from", from.Alias()).Info("order status updated")
	return domain.Ok(updated)
}

// GetOrderByID возвращает гидрированный заказ.
func (s *Service) GetOrderByID(ctx context.Context, orderID int64) domain.Result[domain.Order] {
	return s.getOrder(ctx, orderID, false)
}

// GetOrderForAdmin возвращает заказ, включая помеченные удалёнными.
func (s *Service) GetOrderForAdmin(ctx context.Context, orderID int64) domain.Result[domain.Order] {
	return s.getOrder(ctx, orderID, true)
}

func (s *Service) getOrder(ctx context.Context, orderID int64, withDeleted bool) domain.Result[domain.Order] {
	logger := s.logger.WithField("order_id", orderID)

	order, err := s.store.Orders().Get(ctx, orderID, withDeleted)
	if err != nil {
		return s.result(logger, err, "get order")
	}
	orders := []domain.Order{order}
	if err := newHydrator(s.store).hydrate(ctx, orders); err != nil {
		return s.result(logger, err, "hydrate order")
	}
	return domain.Ok(orders[0])
}

// GetAllOrders возвращает страницу корзин (isCart) или оформленных заказов.
// Не-админ видит только свои заказы, удалённые доступны только админу.
func (s *Service) GetAllOrders(ctx context.Context, criteria query.Criteria, isCart, isAdmin bool, userID int64) domain.Result[OrderList] {
	logger := s.logger.WithFields(log.Fields{"user_id": userID, "admin": isAdmin, "carts": isCart})
	if !isAdmin && userID == 0 {
		return domain.Fail[OrderList](domain.ErrUserIDRequired)
	}

	scope := query.Scope{UserID: userID, IsAdmin: isAdmin, Carts: isCart}
	if isAdmin {
		scope.UserID = 0
	}
	filter := query.OrderFilter(criteria, scope)

	orders, err := s.store.Orders().List(ctx, filter)
	if err != nil {
		return s.resultList(logger, err)
	}
	count, err := s.store.Orders().Count(ctx, filter)
	if err != nil {
		return s.resultList(logger, err)
	}
	if err := newHydrator(s.store).hydrate(ctx, orders); err != nil {
		return s.resultList(logger, err)
	}
	return domain.Ok(OrderList{Items: orders, Count: count})
}

// Timeline возвращает историю заказа.
func (s *Service) Timeline(ctx context.Context, orderID int64) domain.Result[[]domain.TimelineEvent] {
	events, err := s.store.Timeline().List(ctx, orderID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Error("list timeline failed")
		return domain.Fail[[]domain.TimelineEvent](err)
	}
	return domain.Ok(events)
}

// SoftDelete помечает заказ удалённым.
func (s *Service) SoftDelete(ctx context.Context, orderID int64) domain.Result[int64] {
	return s.toggleDeleted(ctx, orderID, true)
}

// Restore снимает пометку удаления.
func (s *Service) Restore(ctx context.Context, orderID int64) domain.Result[int64] {
	return s.toggleDeleted(ctx, orderID, false)
}

func (s *Service) toggleDeleted(ctx context.Context, orderID int64, deleted bool) domain.Result[int64] {
	var err error
	if deleted {
		err = s.store.Orders().SoftDelete(ctx, orderID)
	} else {
		err = s.store.Orders().Restore(ctx, orderID)
	}
	if err != nil {
		if !domain.IsNotFound(err) {
			s.logger.WithError(err).WithField("order_id", orderID).Error("toggle order deletion failed")
		}
		return domain.FromError[int64](err)
	}
	return domain.Ok(orderID)
}

// record пишет событие в timeline и outbox внутри транзакции tx.
func (s *Service) record(ctx context.Context, tx domain.Store, order domain.Order, eventType string, from domain.OrderStatus, reason string) error {
	now := time.Now().UTC()
	if err := tx.Timeline().Append(ctx, domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     eventType,
		From:     from,
		To:       order.Status,
		Reason:   reason,
		Occurred: now,
	}); err != nil {
		return fmt.Errorf("append timeline: %w", err)
	}

	msg, err := domain.NewOutboxMessage(domain.AggregateOrder, order.ID, eventType, domain.OrderEventPayload{
		OrderID:    order.ID,
		UserID:     order.UserID,
		FromStatus: string(from),
		ToStatus:   string(order.Status),
		ItemsCount: len(order.Items),
		OccurredAt: now,
	})
	if err != nil {
		return err
	}
	if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}

	s.metrics.RecordTimelineEvent()
	s.metrics.RecordOutboxEvent()
	return nil
}

// result переводит ошибку в Result: not found даёт пусто, остальное логируется и становится маркером ошибки.
func (s *Service) result(logger *log.Entry, err error, op string) domain.Result[domain.Order] {
	switch {
	case domain.IsNotFound(err):
		logger.WithError(err).Debug(op + ": not found")
	case domain.IsValidation(err), domain.IsVersionConflict(err):
		logger.WithError(err).Warn(op + ": rejected")
	default:
		logger.WithError(err).Error(op + " failed")
	}
	return domain.FromError[domain.Order](err)
}

func (s *Service) resultList(logger *log.Entry, err error) domain.Result[OrderList] {
	logger.WithError(err).Error("list orders failed")
	return domain.Fail[OrderList](err)
}
