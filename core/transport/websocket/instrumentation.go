package websocket

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/koscakluka/ema-realtime/core/transport/websocket"

var logger = otelslog.NewLogger(scopeName)
