// Package grpcsvc содержит gRPC-адаптер магазина поверх сервисов жизненного цикла заказа и каталога.
package grpcsvc

import (
	"context"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/query"
	"github.com/vladislavdragonenkov/shop/internal/service/order"
)

// OrderLifecycle — операции Order Lifecycle Manager, которые публикует API.
type OrderLifecycle interface {
	CreateCart(ctx context.Context, userID int64) domain.Result[domain.Order]
	AddCartItem(ctx context.Context, userID, variantID, qty int64) domain.Result[domain.Order]
	Checkout(ctx context.Context, userID int64, details domain.CheckoutDetails) domain.Result[domain.Order]
	UpdateStatus(ctx context.Context, orderID int64, next domain.OrderStatus) domain.Result[domain.Order]
	GetOrderByID(ctx context.Context, orderID int64) domain.Result[domain.Order]
	GetOrderForAdmin(ctx context.Context, orderID int64) domain.Result[domain.Order]
	GetAllOrders(ctx context.Context, criteria query.Criteria, isCart, isAdmin bool, userID int64) domain.Result[order.OrderList]
	Timeline(ctx context.Context, orderID int64) domain.Result[[]domain.TimelineEvent]
	SoftDelete(ctx context.Context, orderID int64) domain.Result[int64]
	Restore(ctx context.Context, orderID int64) domain.Result[int64]
}

// AddressBook: адресная книга пользователя.
type AddressBook interface {
	List(ctx context.Context, userID int64, offset, limit int) domain.Result[[]domain.UserAddress]
	Create(ctx context.Context, userID int64, tuple domain.AddressTuple) domain.Result[domain.UserAddress]
	Update(ctx context.Context, userID, addressID int64, tuple domain.AddressTuple) domain.Result[domain.UserAddress]
	Delete(ctx context.Context, userID, addressID int64) domain.Result[int64]
}

// OrderService реализует shop.v1.OrderService.
type OrderService struct {
	orders    OrderLifecycle
	addresses AddressBook
	logger    *log.Entry
}

// NewOrderService конструирует сервис с зависимостями.
func NewOrderService(orders OrderLifecycle, addresses AddressBook, logger *log.Entry) *OrderService {
	if logger == nil {
		logger = log.New().WithField("component", "grpc-order-service")
	}
	return &OrderService{
		orders:    orders,
		addresses: addresses,
		logger:    logger,
	}
}

func (s *OrderService) CreateCart(ctx context.Context, _ *CreateCartRequest) (*OrderResponse, error) {
	caller, err := customer(ctx)
	if err != nil {
		return nil, err
	}
	return s.orderReply("CreateCart", s.orders.CreateCart(ctx, caller.UserID))
}

func (s *OrderService) AddCartItem(ctx context.Context, req *AddCartItemRequest) (*OrderResponse, error) {
	caller, err := customer(ctx)
	if err != nil {
		return nil, err
	}
	if req.VariantID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "variant_id is required")
	}
	return s.orderReply("AddCartItem", s.orders.AddCartItem(ctx, caller.UserID, req.VariantID, req.Qty))
}

func (s *OrderService) Checkout(ctx context.Context, req *CheckoutRequest) (*OrderResponse, error) {
	caller, err := customer(ctx)
	if err != nil {
		return nil, err
	}
	if req.ShippingPrice.IsNegative() {
		return nil, status.Error(codes.InvalidArgument, "shipping_price must be non-negative")
	}
	return s.orderReply("Checkout", s.orders.Checkout(ctx, caller.UserID, domain.CheckoutDetails{
		FullName:      req.FullName,
		Phone:         req.Phone,
		Province:      req.Province,
		District:      req.District,
		Ward:          req.Ward,
		Address:       req.Address,
		PaymentMethod: req.PaymentMethod,
		ShippingPrice: req.ShippingPrice,
	}))
}

// UpdateStatus доступен только админу. Неизвестный статус трактуется как запрещённый переход: found=false.
func (s *OrderService) UpdateStatus(ctx context.Context, req *UpdateStatusRequest) (*OrderResponse, error) {
	if _, err := admin(ctx); err != nil {
		return nil, err
	}
	if req.OrderID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	next, ok := domain.ParseOrderStatus(req.Status)
	if !ok {
		s.logger.WithFields(log.Fields{"order_id": req.OrderID, "status": req.Status}).Debug("unknown status ignored")
		return &OrderResponse{}, nil
	}
	return s.orderReply("UpdateStatus", s.orders.UpdateStatus(ctx, req.OrderID, next))
}

// GetOrder возвращает заказ с историей. Чужой заказ для не-админа выглядит как отсутствующий.
func (s *OrderService) GetOrder(ctx context.Context, req *OrderIDRequest) (*OrderResponse, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var res domain.Result[domain.Order]
	if caller.IsAdmin {
		res = s.orders.GetOrderForAdmin(ctx, req.OrderID)
	} else {
		res = s.orders.GetOrderByID(ctx, req.OrderID)
	}
	if res.Failed() {
		return nil, statusFromError(s.logger, "GetOrder", res.Err())
	}
	found, ok := res.Data()
	if !ok || (!caller.IsAdmin && found.UserID != caller.UserID) {
		return &OrderResponse{}, nil
	}

	resp := &OrderResponse{Found: true, Order: toOrder(found)}
	timeline := s.orders.Timeline(ctx, found.ID)
	if events, ok := timeline.Data(); ok {
		resp.Timeline = toTimeline(events)
	}
	return resp, nil
}

func (s *OrderService) ListOrders(ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return nil, err
	}

	criteria := query.Criteria{
		Page:        req.Page,
		PageSize:    req.PageSize,
		Sort:        req.Sort,
		WithDeleted: req.WithDeleted,
	}
	res := s.orders.GetAllOrders(ctx, criteria, req.Carts, caller.IsAdmin, caller.UserID)
	if res.Failed() {
		return nil, statusFromError(s.logger, "ListOrders", res.Err())
	}

	list, _ := res.Data()
	resp := &ListOrdersResponse{Orders: make([]Order, 0, len(list.Items)), Count: list.Count}
	for _, o := range list.Items {
		resp.Orders = append(resp.Orders, *toOrder(o))
	}
	return resp, nil
}

func (s *OrderService) DeleteOrder(ctx context.Context, req *OrderIDRequest) (*AckResponse, error) {
	if _, err := admin(ctx); err != nil {
		return nil, err
	}
	return s.ackReply("DeleteOrder", s.orders.SoftDelete(ctx, req.OrderID))
}

func (s *OrderService) RestoreOrder(ctx context.Context, req *OrderIDRequest) (*AckResponse, error) {
	if _, err := admin(ctx); err != nil {
		return nil, err
	}
	return s.ackReply("RestoreOrder", s.orders.Restore(ctx, req.OrderID))
}

func (s *OrderService) ListAddresses(ctx context.Context, req *ListAddressesRequest) (*ListAddressesResponse, error) {
	caller, err := customer(ctx)
	if err != nil {
		return nil, err
	}

	offset, limit := query.AddressPage(query.Criteria{Page: req.Page, PageSize: req.PageSize})
	res := s.addresses.List(ctx, caller.UserID, offset, limit)
	if res.Failed() {
		return nil, statusFromError(s.logger, "ListAddresses", res.Err())
	}

	addresses, _ := res.Data()
	resp := &ListAddressesResponse{Addresses: make([]Address, 0, len(addresses))}
	for _, a := range addresses {
		resp.Addresses = append(resp.Addresses, *toAddress(a))
	}
	return resp, nil
}

func (s *OrderService) SaveAddress(ctx context.Context, req *SaveAddressRequest) (*AddressResponse, error) {
	caller, err := customer(ctx)
	if err != nil {
		return nil, err
	}

	tuple := domain.AddressTuple{Province: req.Province, District: req.District, Ward: req.Ward, Address: req.Address}
	if tuple.IsZero() {
		return nil, status.Error(codes.InvalidArgument, "address is empty")
	}

	var res domain.Result[domain.UserAddress]
	if req.ID == 0 {
		res = s.addresses.Create(ctx, caller.UserID, tuple)
	} else {
		res = s.addresses.Update(ctx, caller.UserID, req.ID, tuple)
	}
	if res.Failed() {
		return nil, statusFromError(s.logger, "SaveAddress", res.Err())
	}
	saved, ok := res.Data()
	if !ok {
		return &AddressResponse{}, nil
	}
	return &AddressResponse{Found: true, Address: toAddress(saved)}, nil
}

func (s *OrderService) DeleteAddress(ctx context.Context, req *AddressIDRequest) (*AckResponse, error) {
	caller, err := customer(ctx)
	if err != nil {
		return nil, err
	}
	return s.ackReply("DeleteAddress", s.addresses.Delete(ctx, caller.UserID, req.ID))
}

func (s *OrderService) orderReply(operation string, res domain.Result[domain.Order]) (*OrderResponse, error) {
	if res.Failed() {
		return nil, statusFromError(s.logger, operation, res.Err())
	}
	found, ok := res.Data()
	if !ok {
		return &OrderResponse{}, nil
	}
	return &OrderResponse{Found: true, Order: toOrder(found)}, nil
}

func (s *OrderService) ackReply(operation string, res domain.Result[int64]) (*AckResponse, error) {
	if res.Failed() {
		return nil, statusFromError(s.logger, operation, res.Err())
	}
	id, ok := res.Data()
	return &AckResponse{Found: ok, ID: id}, nil
}
