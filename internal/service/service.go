// Package service holds the chat consistency rules: one chat per pair of
// users, an ordered message ledger per chat, one-way read flags and the
// per-user chat list projection.
package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pairchat/internal/apperr"
	"pairchat/internal/models"
	"pairchat/internal/observability"
)

// Clock returns the current time.
type Clock func() time.Time

// UTCNow is the default clock. Storage keeps microseconds, so the clock does too.
func UTCNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Notifier is told about changes once they are committed.
type Notifier interface {
	ChatCreated(ctx context.Context, chat models.Chat)
	MessageCreated(ctx context.Context, msg models.Message)
	MessagesRead(ctx context.Context, chatID uuid.UUID, readerID uuid.UUID, count int64)
}

type nopNotifier struct{}

func (nopNotifier) ChatCreated(context.Context, models.Chat) {}
func (nopNotifier) MessageCreated(context.Context, models.Message) {}
func (nopNotifier) MessagesRead(context.Context, uuid.UUID, uuid.UUID, int64) {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

var tracer = observability.Tracer("service")

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on span unless it is a client error.
func endSpan(span trace.Span, err error) {
	if err != nil {
		code := apperr.CodeOf(err)
		span.SetAttributes(attribute.String("error.code", string(code)))
		if code == apperr.CodeInternal {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

// storageError logs err and hides it behind an internal error.
func storageError(op string, err error) error {
	log.Printf("service: op=%s err=%v", op, err)
	return apperr.Internal(op+" failed", err)
}
