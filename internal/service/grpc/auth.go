package grpcsvc

import (
	"context"
	"strconv"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Metadata, из которой берётся вызывающий. Аутентификацию выполняет gateway,
// сервис доверяет этим заголовкам.
const (
	HeaderUserID   = "x-user-id"
	HeaderUserRole = "x-user-role"

	roleAdmin = "admin"
)

// Caller — идентичность вызывающего.
type Caller struct {
	UserID  int64
	IsAdmin bool
}

func callerFromContext(ctx context.Context) (Caller, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return Caller{}, status.Error(codes.Unauthenticated, "caller metadata is required")
	}

	var caller Caller
	if values := md.Get(HeaderUserRole); len(values) > 0 {
		caller.IsAdmin = strings.EqualFold(strings.TrimSpace(values[0]), roleAdmin)
	}
	if values := md.Get(HeaderUserID); len(values) > 0 && strings.TrimSpace(values[0]) != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(values[0]), 10, 64)
		if err != nil || id <= 0 {
			return Caller{}, status.Errorf(codes.Unauthenticated, "invalid %s", HeaderUserID)
		}
		caller.UserID = id
	}
	if caller.UserID == 0 && !caller.IsAdmin {
		return Caller{}, status.Errorf(codes.Unauthenticated, "%s is required", HeaderUserID)
	}
	return caller, nil
}

// customer требует конкретного пользователя (корзина, оформление, адреса).
func customer(ctx context.Context) (Caller, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return Caller{}, err
	}
	if caller.UserID == 0 {
		return Caller{}, status.Errorf(codes.InvalidArgument, "%s is required", HeaderUserID)
	}
	return caller, nil
}

func admin(ctx context.Context) (Caller, error) {
	caller, err := callerFromContext(ctx)
	if err != nil {
		return Caller{}, err
	}
	if !caller.IsAdmin {
		return Caller{}, status.Error(codes.PermissionDenied, "admin role is required")
	}
	return caller, nil
}

// OutgoingCaller добавляет metadata вызывающего в исходящий контекст клиента.
func OutgoingCaller(ctx context.Context, userID int64, isAdmin bool) context.Context {
	pairs := make([]string, 0, 4)
	if userID > 0 {
		pairs = append(pairs, HeaderUserID, strconv.FormatInt(userID, 10))
	}
	if isAdmin {
		pairs = append(pairs, HeaderUserRole, roleAdmin)
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...)
}
