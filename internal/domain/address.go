package domain

import (
	"strings"
	"time"
)

// User: минимальный профиль, из которого корзина берёт получателя.
type User struct {
	ID        int64
	FullName  string
	Phone     string
	CreatedAt time.Time
}

// AddressTuple — ключ дедупликации адресной книги.
type AddressTuple struct {
	Province string
	District string
	Ward     string
	Address  string
}

// IsZero сообщает, что ни одно поле адреса не заполнено.
func (a AddressTuple) IsZero() bool {
	return strings.TrimSpace(a.Province) == "" &&
		strings.TrimSpace(a.District) == "" &&
		strings.TrimSpace(a.Ward) == "" &&
		strings.TrimSpace(a.Address) == ""
}

// UserAddress — запись адресной книги пользователя.
type UserAddress struct {
	ID     int64
	UserID int64
	AddressTuple
	CreatedAt time.Time
	UpdatedAt time.Time
}
