package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
)

// OrderClient — клиент shop.v1.OrderService. Вызывающего задаёт OutgoingCaller.
type OrderClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderClient(cc grpc.ClientConnInterface) *OrderClient {
	return &OrderClient{cc: cc}
}

func (c *OrderClient) CreateCart(ctx context.Context, in *CreateCartRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, fullMethod(OrderServiceName, "CreateCart"), in, opts)
}

func (c *OrderClient) AddCartItem(ctx context.Context, in *AddCartItemRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, fullMethod(OrderServiceName, "AddCartItem"), in, opts)
}

func (c *OrderClient) Checkout(ctx context.Context, in *CheckoutRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, fullMethod(OrderServiceName, "Checkout"), in, opts)
}

func (c *OrderClient) UpdateStatus(ctx context.Context, in *UpdateStatusRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, fullMethod(OrderServiceName, "UpdateStatus"), in, opts)
}

func (c *OrderClient) GetOrder(ctx context.Context, in *OrderIDRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, fullMethod(OrderServiceName, "GetOrder"), in, opts)
}

func (c *OrderClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	return invoke[ListOrdersResponse](ctx, c.cc, fullMethod(OrderServiceName, "ListOrders"), in, opts)
}

func (c *OrderClient) DeleteOrder(ctx context.Context, in *OrderIDRequest, opts ...grpc.CallOption) (*AckResponse, error) {
	return invoke[AckResponse](ctx, c.cc, fullMethod(OrderServiceName, "DeleteOrder"), in, opts)
}

func (c *OrderClient) RestoreOrder(ctx context.Context, in *OrderIDRequest, opts ...grpc.CallOption) (*AckResponse, error) {
	return invoke[AckResponse](ctx, c.cc, fullMethod(OrderServiceName, "RestoreOrder"), in, opts)
}

func (c *OrderClient) ListAddresses(ctx context.Context, in *ListAddressesRequest, opts ...grpc.CallOption) (*ListAddressesResponse, error) {
	return invoke[ListAddressesResponse](ctx, c.cc, fullMethod(OrderServiceName, "ListAddresses"), in, opts)
}

func (c *OrderClient) SaveAddress(ctx context.Context, in *SaveAddressRequest, opts ...grpc.CallOption) (*AddressResponse, error) {
	return invoke[AddressResponse](ctx, c.cc, fullMethod(OrderServiceName, "SaveAddress"), in, opts)
}

func (c *OrderClient) DeleteAddress(ctx context.Context, in *AddressIDRequest, opts ...grpc.CallOption) (*AckResponse, error) {
	return invoke[AckResponse](ctx, c.cc, fullMethod(OrderServiceName, "DeleteAddress"), in, opts)
}

// CatalogClient вызывает shop.v1.CatalogService.
type CatalogClient struct {
	cc grpc.ClientConnInterface
}

func NewCatalogClient(cc grpc.ClientConnInterface) *CatalogClient {
	return &CatalogClient{cc: cc}
}

func (c *CatalogClient) CreateProduct(ctx context.Context, in *CreateProductRequest, opts ...grpc.CallOption) (*ProductResponse, error) {
	return invoke[ProductResponse](ctx, c.cc, fullMethod(CatalogServiceName, "CreateProduct"), in, opts)
}

func (c *CatalogClient) UpdateProduct(ctx context.Context, in *UpdateProductRequest, opts ...grpc.CallOption) (*ProductResponse, error) {
	return invoke[ProductResponse](ctx, c.cc, fullMethod(CatalogServiceName, "UpdateProduct"), in, opts)
}

func (c *CatalogClient) UpdateVariant(ctx context.Context, in *UpdateVariantRequest, opts ...grpc.CallOption) (*VariantResponse, error) {
	return invoke[VariantResponse](ctx, c.cc, fullMethod(CatalogServiceName, "UpdateVariant"), in, opts)
}

func (c *CatalogClient) DeleteVariant(ctx context.Context, in *VariantIDRequest, opts ...grpc.CallOption) (*VariantResponse, error) {
	return invoke[VariantResponse](ctx, c.cc, fullMethod(CatalogServiceName, "DeleteVariant"), in, opts)
}

func (c *CatalogClient) RestoreVariant(ctx context.Context, in *VariantIDRequest, opts ...grpc.CallOption) (*VariantResponse, error) {
	return invoke[VariantResponse](ctx, c.cc, fullMethod(CatalogServiceName, "RestoreVariant"), in, opts)
}

func (c *CatalogClient) GetProduct(ctx context.Context, in *ProductIDRequest, opts ...grpc.CallOption) (*ProductResponse, error) {
	return invoke[ProductResponse](ctx, c.cc, fullMethod(CatalogServiceName, "GetProduct"), in, opts)
}

func (c *CatalogClient) RefreshInventory(ctx context.Context, in *ProductIDRequest, opts ...grpc.CallOption) (*InventoryResponse, error) {
	return invoke[InventoryResponse](ctx, c.cc, fullMethod(CatalogServiceName, "RefreshInventory"), in, opts)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
