package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxName
	ctxEmail
	ctxRole
)

func WithIdentity(ctx context.Context, s Subject) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, s.UserID)
	ctx = context.WithValue(ctx, ctxName, s.Name)
	ctx = context.WithValue(ctx, ctxEmail, s.Email)
	ctx = context.WithValue(ctx, ctxRole, s.Role)
	return ctx
}

func UserID(ctx context.Context) (int64, error) {
	if id, ok := ctx.Value(ctxUserID).(int64); ok && id > 0 {
		return id, nil
	}
	return 0, errors.New("user_id not in context")
}

func Name(ctx context.Context) string {
	s, _ := ctx.Value(ctxName).(string)
	return s
}

func Email(ctx context.Context) string {
	s, _ := ctx.Value(ctxEmail).(string)
	return s
}

func Role(ctx context.Context) (string, error) {
	v := ctx.Value(ctxRole)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("role not in context")
}
