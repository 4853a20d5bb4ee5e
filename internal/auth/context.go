package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxService ctxKey = iota
	ctxTokenID
)

func WithIdentity(ctx context.Context, service, tokenID string) context.Context {
	ctx = context.WithValue(ctx, ctxService, service)
	ctx = context.WithValue(ctx, ctxTokenID, tokenID)
	return ctx
}

func Service(ctx context.Context) (string, error) {
	if s, ok := ctx.Value(ctxService).(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("service not in context")
}

func TokenID(ctx context.Context) (string, error) {
	if s, ok := ctx.Value(ctxTokenID).(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("token id not in context")
}
