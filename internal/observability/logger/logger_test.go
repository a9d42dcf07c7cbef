package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromWithFields_UsesScopedLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := ToContext(context.Background(), zap.New(core).With(RequestID("rid-1")))

	FromWithFields(ctx, Component("vault"), MerchantID("M1")).Info("refreshed")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "rid-1", fields["request_id"])
	assert.Equal(t, "vault", fields["component"])
	assert.Equal(t, "M1", fields["merchant_id"])
}

func TestFrom_FallsBackToSingleton(t *testing.T) {
	assert.Same(t, L(), From(context.Background()))
	assert.NotNil(t, Named("webhook"))
	assert.NotNil(t, With(Component("app")))
}
