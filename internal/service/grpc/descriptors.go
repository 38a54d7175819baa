package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	OrderServiceName   = "shop.v1.OrderService"
	CatalogServiceName = "shop.v1.CatalogService"
)

// OrderServiceServer — серверная сторона shop.v1.OrderService.
type OrderServiceServer interface {
	CreateCart(context.Context, *CreateCartRequest) (*OrderResponse, error)
	AddCartItem(context.Context, *AddCartItemRequest) (*OrderResponse, error)
	Checkout(context.Context, *CheckoutRequest) (*OrderResponse, error)
	UpdateStatus(context.Context, *UpdateStatusRequest) (*OrderResponse, error)
	GetOrder(context.Context, *OrderIDRequest) (*OrderResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	DeleteOrder(context.Context, *OrderIDRequest) (*AckResponse, error)
	RestoreOrder(context.Context, *OrderIDRequest) (*AckResponse, error)
	ListAddresses(context.Context, *ListAddressesRequest) (*ListAddressesResponse, error)
	SaveAddress(context.Context, *SaveAddressRequest) (*AddressResponse, error)
	DeleteAddress(context.Context, *AddressIDRequest) (*AckResponse, error)
}

// CatalogServiceServer: серверная сторона shop.v1.CatalogService.
type CatalogServiceServer interface {
	CreateProduct(context.Context, *CreateProductRequest) (*ProductResponse, error)
	UpdateProduct(context.Context, *UpdateProductRequest) (*ProductResponse, error)
	UpdateVariant(context.Context, *UpdateVariantRequest) (*VariantResponse, error)
	DeleteVariant(context.Context, *VariantIDRequest) (*VariantResponse, error)
	RestoreVariant(context.Context, *VariantIDRequest) (*VariantResponse, error)
	GetProduct(context.Context, *ProductIDRequest) (*ProductResponse, error)
	RefreshInventory(context.Context, *ProductIDRequest) (*InventoryResponse, error)
}

var (
	_ OrderServiceServer   = (*OrderService)(nil)
	_ CatalogServiceServer = (*CatalogService)(nil)
)

// unaryHandler строит grpc.MethodHandler из метода сервера, сохраняя цепочку interceptor-ов.
func unaryHandler[S any, Req any, Resp any](fullMethod string, call func(S, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(S), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(S), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func method[S any, Req any, Resp any](service, name string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler:    unaryHandler(fullMethod(service, name), call),
	}
}

func fullMethod(service, name string) string {
	return "/" + service + "/" + name
}

// OrderServiceDesc описывает shop.v1.OrderService.
var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: OrderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		method(OrderServiceName, "CreateCart", OrderServiceServer.CreateCart),
		method(OrderServiceName, "AddCartItem", OrderServiceServer.AddCartItem),
		method(OrderServiceName, "Checkout", OrderServiceServer.Checkout),
		method(OrderServiceName, "UpdateStatus", OrderServiceServer.UpdateStatus),
		method(OrderServiceName, "GetOrder", OrderServiceServer.GetOrder),
		method(OrderServiceName, "ListOrders", OrderServiceServer.ListOrders),
		method(OrderServiceName, "DeleteOrder", OrderServiceServer.DeleteOrder),
		method(OrderServiceName, "RestoreOrder", OrderServiceServer.RestoreOrder),
		method(OrderServiceName, "ListAddresses", OrderServiceServer.ListAddresses),
		method(OrderServiceName, "SaveAddress", OrderServiceServer.SaveAddress),
		method(OrderServiceName, "DeleteAddress", OrderServiceServer.DeleteAddress),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shop/v1/shop.json",
}

// CatalogServiceDesc описывает shop.v1.CatalogService.
var CatalogServiceDesc = grpc.ServiceDesc{
	ServiceName: CatalogServiceName,
	HandlerType: (*CatalogServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		method(CatalogServiceName, "CreateProduct", CatalogServiceServer.CreateProduct),
		method(CatalogServiceName, "UpdateProduct", CatalogServiceServer.UpdateProduct),
		method(CatalogServiceName, "UpdateVariant", CatalogServiceServer.UpdateVariant),
		method(CatalogServiceName, "DeleteVariant", CatalogServiceServer.DeleteVariant),
		method(CatalogServiceName, "RestoreVariant", CatalogServiceServer.RestoreVariant),
		method(CatalogServiceName, "GetProduct", CatalogServiceServer.GetProduct),
		method(CatalogServiceName, "RefreshInventory", CatalogServiceServer.RefreshInventory),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shop/v1/shop.json",
}

// RegisterOrderServiceServer регистрирует сервис заказов на gRPC-сервере.
func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}

// RegisterCatalogServiceServer регистрирует сервис каталога.
func RegisterCatalogServiceServer(s grpc.ServiceRegistrar, srv CatalogServiceServer) {
	s.RegisterService(&CatalogServiceDesc, srv)
}
