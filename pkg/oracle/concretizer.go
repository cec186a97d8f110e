/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: concretizer.go
Description: Contracts between the knowledge base and the protocol side. A concretizer turns
abstract symbols into protocol messages on a live connection and abstracts the answers
back into symbols. A trigger restarts the target before every query.
*/

package oracle

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/kleascm/akaylee-tlsfsm/pkg/scenario"
)

// Sentinel output symbols produced by the knowledge base
const (
	NoConnection   = "NO_CONNECTION"
	EOF            = "EOF"
	NoResponse     = "No RSP"
	EmissionError  = "INTERNAL ERROR DURING EMISSION"
	ReceptionError = "INTERNAL ERROR DURING RECEPTION"
)

// ErrConnectionLost is returned by concretizers when the peer is gone
var ErrConnectionLost = errors.New("connection lost")

// Concretizer drives one target connection at a time
type Concretizer interface {
	// Open prepares the local side, for instance by listening
	Open(ctx context.Context) error
	// Accept waits for the target to connect. A zero timeout waits until ctx ends.
	Accept(ctx context.Context, timeout time.Duration) error
	// Send emits the message for one input symbol
	Send(ctx context.Context, symbol string) error
	// ReadNext reads the next response fragment. An empty result with a nil error
	// means nothing arrived within timeout.
	ReadNext(ctx context.Context, timeout time.Duration) ([]string, error)
	// Disconnect drops the current target connection
	Disconnect() error
	// Close releases the local side
	Close() error
}

// Trigger restarts the target so that it connects to the local endpoint again
type Trigger interface {
	Open(ctx context.Context) error
	Fire(ctx context.Context, local scenario.Endpoint) error
	Close() error
}

// IsConnectionLost reports whether err means the peer closed or reset the connection
func IsConnectionLost(err error) bool {
	return errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}

// isTimeout reports whether err is a network timeout
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
