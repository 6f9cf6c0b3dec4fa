package realtime

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-realtime/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	connectAttemptCounter, _ = meter.Int64Counter("realtime.connect.attempts",
		metric.WithDescription("Connection attempts, including reconnection tries"))
	reconnectAttemptCounter, _ = meter.Int64Counter("realtime.reconnect.attempts",
		metric.WithDescription("Reconnection tries after an abnormal closure"))
	fallbackCounter, _ = meter.Int64Counter("realtime.fallback.entered",
		metric.WithDescription("Sessions that degraded to fallback mode"))
	malformedFrameCounter, _ = meter.Int64Counter("realtime.frames.malformed",
		metric.WithDescription("Inbound frames that could not be parsed"))
)
