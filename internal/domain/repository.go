package domain

import "context"

// OrderRepository описывает требования к хранилищу заказов и корзин.
type OrderRepository interface {
	// Create сохраняет новый заказ вместе с позициями и проставляет ID.
	Create(ctx context.Context, order *Order) error
	// Get возвращает заказ с позициями или ErrOrderNotFound.
	Get(ctx context.Context, id int64, withDeleted bool) (Order, error)
	// FindOpenCart возвращает самую свежую корзину пользователя (status IS NULL).
	FindOpenCart(ctx context.Context, userID int64) (Order, error)
	// List возвращает заказы по фильтру, позиции подгружаются.
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
	// Count возвращает число заказов по фильтру без учёта Offset/Limit.
	Count(ctx context.Context, filter OrderFilter) (int, error)
	// Save применяет обновления с учётом optimistic locking и увеличивает order.Version.
	Save(ctx context.Context, order *Order) error
	// AddItem добавляет позицию в заказ.
	AddItem(ctx context.Context, item *OrderItem) error
	SoftDelete(ctx context.Context, id int64) error
	Restore(ctx context.Context, id int64) error
}

// ProductRepository хранит карточки товаров.
type ProductRepository interface {
	Create(ctx context.Context, product *Product) error
	Get(ctx context.Context, id int64) (Product, error)
	// GetForUpdate читает товар и блокирует строку до конца транзакции.
	// Пересчёты остатка одного товара выполняются по очереди.
	GetForUpdate(ctx context.Context, id int64) (Product, error)
	// Update перезаписывает редактируемые поля, Inventory не трогает.
	Update(ctx context.Context, product Product) error
	// SetInventory записывает агрегированный остаток.
	SetInventory(ctx context.Context, id int64, inventory int64) error
	AddImages(ctx context.Context, productID int64, paths []string) ([]ProductImage, error)
	Images(ctx context.Context, productID int64) ([]ProductImage, error)
}

// VariantRepository хранит варианты товаров, источник истины для остатков.
type VariantRepository interface {
	// Create сохраняет вариант вместе со значениями атрибутов.
	Create(ctx context.Context, variant *ProductVariant) error
	Get(ctx context.Context, id int64, withDeleted bool) (ProductVariant, error)
	Update(ctx context.Context, variant ProductVariant) error
	ListByProduct(ctx context.Context, productID int64, withDeleted bool) ([]ProductVariant, error)
	// SumInventory суммирует остатки не удалённых вариантов товара, 0 если их нет.
	SumInventory(ctx context.Context, productID int64) (int64, error)
	// Deduct атомарно уменьшает остаток. Остаток может уйти в минус:
	// проверку наличия делает вызывающий, если она включена.
	Deduct(ctx context.Context, id int64, qty int64) (ProductVariant, error)
	SoftDelete(ctx context.Context, id int64) (ProductVariant, error)
	Restore(ctx context.Context, id int64) (ProductVariant, error)
}

// AddressRepository хранит адресную книгу пользователей.
type AddressRepository interface {
	// FindExact ищет адрес по точному совпадению кортежа.
	FindExact(ctx context.Context, userID int64, tuple AddressTuple) (UserAddress, error)
	// Latest возвращает последний сохранённый адрес пользователя.
	Latest(ctx context.Context, userID int64) (UserAddress, error)
	ListByUser(ctx context.Context, userID int64, offset, limit int) ([]UserAddress, error)
	// Create возвращает ErrAddressExists при нарушении уникальности кортежа.
	Create(ctx context.Context, address *UserAddress) error
	Update(ctx context.Context, address UserAddress) error
	Delete(ctx context.Context, userID, id int64) error
}

// UserRepository отдаёт профили пользователей.
type UserRepository interface {
	Get(ctx context.Context, id int64) (User, error)
	Create(ctx context.Context, user *User) error
}

// Store объединяет репозитории и задаёт границу транзакции.
type Store interface {
	Orders() OrderRepository
	Products() ProductRepository
	Variants() VariantRepository
	Addresses() AddressRepository
	Users() UserRepository
	Outbox() OutboxRepository
	Timeline() TimelineRepository
	// WithinTx выполняет fn атомарно: при ошибке все записи через tx откатываются.
	// Вложенный вызов на tx переиспользует текущую транзакцию.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
