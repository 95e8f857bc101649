package shared

import (
	"context"

	"github.com/google/uuid"
)

type operatorContextKey struct{}

// ContextWithOperator stores the acting operator id in context.
func ContextWithOperator(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, id)
}

// OperatorFromContext extracts the operator id, returning uuid.Nil when absent.
func OperatorFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(operatorContextKey{}).(uuid.UUID)
	return id
}
