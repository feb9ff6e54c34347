// Package context carries correlation identifiers through request contexts.
package context

import (
	"context"
	"strings"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	channelKey
	storeOpKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithChannel records which front-end (http, cli) issued the request.
func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, channelKey, strings.TrimSpace(channel))
}

func ChannelFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(channelKey).(string)
	return v
}

// WithStoreOp names the remote-store operation (count, insert, next_value)
// that the queries run under ctx belong to.
func WithStoreOp(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, storeOpKey, op)
}

func StoreOpFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(storeOpKey).(string)
	return v
}
