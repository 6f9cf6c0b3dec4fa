package realtime

import (
	"errors"
	"time"

	"github.com/koscakluka/ema-realtime/core/endpoints"
)

var (
	ErrConnectionTimeout = errors.New("connection attempt timed out")
	ErrConnectionRefused = errors.New("connection refused")
	ErrAbnormalClosure   = errors.New("connection closed abnormally")
	ErrMalformedFrame    = errors.New("malformed frame")
	ErrSendFailure       = errors.New("failed to send command")
	ErrRemoteError       = errors.New("backend reported an error")

	ErrNoEndpoints        = errors.New("no endpoints configured")
	ErrEndpointsExhausted = errors.New("all endpoints failed")
	ErrReconnectLimit     = errors.New("reconnect attempts exhausted")
	ErrDisconnected       = errors.New("session disconnected")
	ErrClosed             = errors.New("manager closed")
)

type ErrorInfo struct {
	Err       error
	Endpoint  endpoints.Endpoint
	Timestamp time.Time
}

func newErrorInfo(err error, endpoint endpoints.Endpoint) *ErrorInfo {
	return &ErrorInfo{Err: err, Endpoint: endpoint, Timestamp: time.Now()}
}
