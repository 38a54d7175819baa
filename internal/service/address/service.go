// Package address ведёт адресную книгу пользователя и сверяет с ней адреса оформления.
package address

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

// Service реализует сверку адресов и CRUD адресной книги.
type Service struct {
	store   domain.Store
	logger  *log.Entry
	metrics *metrics.ShopMetrics
}

// NewService создаёт сервис адресов. metrics может быть nil.
func NewService(store domain.Store, logger *log.Entry, m *metrics.ShopMetrics) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "address")
	}
	return &Service{store: store, logger: logger, metrics: m}
}

// Reconcile гарантирует наличие в адресной книге точной копии tuple.
// Существующая запись никогда не изменяется. created=true, если адрес вставлен.
func (s *Service) Reconcile(ctx context.Context, userID int64, tuple domain.AddressTuple) (domain.UserAddress, bool, error) {
	if userID == 0 {
		return domain.UserAddress{}, false, domain.ErrUserIDRequired
	}

	existing, err := s.store.Addresses().FindExact(ctx, userID, tuple)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrAddressNotFound) {
		return domain.UserAddress{}, false, err
	}

	address := domain.UserAddress{UserID: userID, AddressTuple: tuple}
	if err := s.store.Addresses().Create(ctx, &address); err != nil {
		// Параллельный checkout успел вставить тот же адрес.
		if errors.Is(err, domain.ErrAddressExists) {
			existing, findErr := s.store.Addresses().FindExact(ctx, userID, tuple)
			return existing, false, findErr
		}
		return domain.UserAddress{}, false, err
	}

	s.metrics.RecordAddressCreated()
	s.logger.WithFields(log.Fields{
		"user_id":    userID,
		"address_id": address.ID,
	}).Info("address saved from checkout")
	return address, true, nil
}

// List возвращает адреса пользователя, свежие первыми.
func (s *Service) List(ctx context.Context, userID int64, offset, limit int) domain.Result[[]domain.UserAddress] {
	addresses, err := s.store.Addresses().ListByUser(ctx, userID, offset, limit)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("list addresses failed")
		return domain.Fail[[]domain.UserAddress](err)
	}
	return domain.Ok(addresses)
}

// Create добавляет адрес вручную. Дубликат кортежа возвращает ErrAddressExists.
func (s *Service) Create(ctx context.Context, userID int64, tuple domain.AddressTuple) domain.Result[domain.UserAddress] {
	if userID == 0 {
		return domain.Fail[domain.UserAddress](domain.ErrUserIDRequired)
	}
	address := domain.UserAddress{UserID: userID, AddressTuple: normalize(tuple)}
	if err := s.store.Addresses().Create(ctx, &address); err != nil {
		return s.fail(err, "create address", userID)
	}
	return domain.Ok(address)
}

// Update меняет адрес пользователя; чужой адрес не найден.
func (s *Service) Update(ctx context.Context, userID, addressID int64, tuple domain.AddressTuple) domain.Result[domain.UserAddress] {
	address := domain.UserAddress{ID: addressID, UserID: userID, AddressTuple: normalize(tuple)}
	if err := s.store.Addresses().Update(ctx, address); err != nil {
		return s.fail(err, "update address", userID)
	}
	return domain.Ok(address)
}

// Delete удаляет адрес пользователя.
func (s *Service) Delete(ctx context.Context, userID, addressID int64) domain.Result[int64] {
	if err := s.store.Addresses().Delete(ctx, userID, addressID); err != nil {
		return domain.FromError[int64](err)
	}
	return domain.Ok(addressID)
}

func (s *Service) fail(err error, op string, userID int64) domain.Result[domain.UserAddress] {
	if !domain.IsNotFound(err) && !domain.IsValidation(err) {
		s.logger.WithError(err).WithField("user_id", userID).Error(op + " failed")
	}
	return domain.FromError[domain.UserAddress](err)
}

// normalize обрезает пробелы для адресов из адресной книги.
// Reconcile кортеж не трогает: сравнение строгое.
func normalize(t domain.AddressTuple) domain.AddressTuple {
	return domain.AddressTuple{
		Province: strings.TrimSpace(t.Province),
		District: strings.TrimSpace(t.District),
		Ward:     strings.TrimSpace(t.Ward),
		Address:  strings.TrimSpace(t.Address),
	}
}
