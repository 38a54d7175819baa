package grpcsvc

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// statusFromError переводит маркер ошибки Result в gRPC status.
func statusFromError(logger *log.Entry, operation string, err error) error {
	code := codes.Internal
	message := "internal error"

	switch {
	case domain.IsNotFound(err):
		code, message = codes.NotFound, err.Error()
	case errors.Is(err, domain.ErrAddressExists):
		code, message = codes.AlreadyExists, err.Error()
	case domain.IsValidation(err):
		code, message = codes.InvalidArgument, err.Error()
	case domain.IsVersionConflict(err):
		code, message = codes.Aborted, err.Error()
	case errors.Is(err, domain.ErrInsufficientStock):
		code, message = codes.FailedPrecondition, err.Error()
	case errors.Is(err, domain.ErrLockNotAcquired):
		code, message = codes.Unavailable, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		code, message = codes.DeadlineExceeded, err.Error()
	case errors.Is(err, context.Canceled):
		code, message = codes.Canceled, err.Error()
	}

	if code == codes.Internal {
		logger.WithError(err).WithField("operation", operation).Error("request failed")
	}
	return status.Error(code, message)
}
