package audit

import (
	"context"
)

// requestInfoKey is an unexported context key for passing client details to Log.
//
// HTTP middleware resolves the real client IP and user agent and attaches them
// with WithRequestInfo; jobs leave them empty.
type requestInfoKey struct{}

type requestInfo struct {
	ip        string
	userAgent string
}

func WithRequestInfo(ctx context.Context, ip, userAgent string) context.Context {
	if ip == "" && userAgent == "" {
		return ctx
	}
	return context.WithValue(ctx, requestInfoKey{}, requestInfo{ip: ip, userAgent: userAgent})
}

func RequestInfoFromContext(ctx context.Context) (ip, userAgent string) {
	if v, ok := ctx.Value(requestInfoKey{}).(requestInfo); ok {
		return v.ip, v.userAgent
	}
	return "", ""
}
