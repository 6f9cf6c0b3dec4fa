package transport

import (
	"context"
	"errors"
	"fmt"
)

// Close codes shared by all transports. They follow RFC 6455 so websocket
// close frames map onto them directly.
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseProtocolError = 1002
	CloseAbnormal      = 1006
	CloseInternalError = 1011
)

// Transport opens streaming connections to backend addresses.
type Transport interface {
	// Open connects to address. Implementations must give up when ctx is
	// done.
	Open(ctx context.Context, address string) (Handle, error)
}

// Handle is one open streaming connection.
type Handle interface {
	// Send transmits a single frame.
	Send(data []byte) error
	// Receive blocks until the next frame arrives. Once the connection is
	// closed it returns a *CloseError.
	Receive() ([]byte, error)
	// Close terminates the connection with the given close code.
	Close(code int, reason string) error
}

// CloseError describes why a connection ended.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("connection closed with code %d", e.Code)
	}
	return fmt.Sprintf("connection closed with code %d: %s", e.Code, e.Reason)
}

// IsNormal reports whether the close was a normal closure.
func (e *CloseError) IsNormal() bool { return e != nil && e.Code == CloseNormal }

// AsCloseError extracts the close details from err. Errors that carry no
// close information are reported as abnormal closures.
func AsCloseError(err error) *CloseError {
	if err == nil {
		return nil
	}

	var closeErr *CloseError
	if errors.As(err, &closeErr) {
		return closeErr
	}
	return &CloseError{Code: CloseAbnormal, Reason: err.Error()}
}

// Func adapts a function to the Transport interface.
type Func func(ctx context.Context, address string) (Handle, error)

func (f Func) Open(ctx context.Context, address string) (Handle, error) { return f(ctx, address) }
