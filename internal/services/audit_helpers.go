package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/sentinelsoc/sentinel/internal/auditctx"
)

// withActor appends the request actor to fields for administrative change logs.
func withActor(ctx context.Context, fields ...zap.Field) []zap.Field {
	return append(fields, auditctx.Fields(ctx)...)
}
