package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserIDRequired = errors.New("user_id is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка пустого названия товара.
	ErrProductNameRequired = errors.New("product name is required")
	// Ошибка отрицательной цены товара или варианта.
	ErrPriceNegative = errors.New("price must be non-negative")
	// Ошибка отрицательного остатка варианта.
	ErrInventoryNegative = errors.New("inventory must be non-negative")
	// ErrOrderNotFound возвращается, если заказ (или открытая корзина) не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOrderNotCart: попытка изменить позиции уже оформленного заказа.
	ErrOrderNotCart = errors.New("order is not an open cart")
	// ErrTransitionNotAllowed — переход статуса отсутствует в таблице переходов.
	ErrTransitionNotAllowed = errors.New("status transition not allowed")
	// ErrUserNotFound возвращается, если профиль пользователя отсутствует.
	ErrUserNotFound    = errors.New("user not found")
	ErrProductNotFound = errors.New("product not found")
	ErrVariantNotFound = errors.New("product variant not found")
	ErrAddressNotFound = errors.New("user address not found")
	// ErrAddressExists — адрес с таким же кортежем уже сохранён у пользователя.
	ErrAddressExists = errors.New("user address already exists")
	// ErrInsufficientStock — списание увело бы остаток варианта в минус.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrLockNotAcquired: ключ уже удерживается другим обработчиком.
	ErrLockNotAcquired = errors.New("lock not acquired")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsNotFound объединяет все "not found" ошибки домена.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrVariantNotFound) ||
		errors.Is(err, ErrAddressNotFound)
}

// IsValidation сообщает об ошибке входных данных (не о сбое хранилища).
func IsValidation(err error) bool {
	return errors.Is(err, ErrUserIDRequired) ||
		errors.Is(err, ErrItemQtyInvalid) ||
		errors.Is(err, ErrProductNameRequired) ||
		errors.Is(err, ErrPriceNegative) ||
		errors.Is(err, ErrInventoryNegative) ||
		errors.Is(err, ErrOrderNotCart) ||
		errors.Is(err, ErrAddressExists)
}
