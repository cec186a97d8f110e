/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: trigger.go
Description: TCP trigger channel. A small script next to the target listens on the trigger
endpoint and starts a fresh target every time it receives "<host> <port>".
*/

package oracle

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/kleascm/akaylee-tlsfsm/pkg/scenario"
)

// drainWindow is how long Fire waits for a trigger reply before moving on
const drainWindow = 10 * time.Millisecond

// TCPTrigger restarts the target through a TCP control connection
type TCPTrigger struct {
	endpoint scenario.Endpoint
	timeout  time.Duration
	conn     net.Conn
}

// NewTCPTrigger creates a trigger connecting to endpoint once opened
func NewTCPTrigger(endpoint scenario.Endpoint, timeout time.Duration) *TCPTrigger {
	return &TCPTrigger{endpoint: endpoint, timeout: timeout}
}

// Open connects to the trigger endpoint
func (t *TCPTrigger) Open(ctx context.Context) error {
	d := net.Dialer{Timeout: t.timeout}
	conn, err := d.DialContext(ctx, "tcp", t.endpoint.String())
	if err != nil {
		return fmt.Errorf("failed to connect to trigger %s: %w", t.endpoint, err)
	}
	t.conn = conn
	return nil
}

// Fire asks for a target connecting to local and drops whatever the trigger answered
func (t *TCPTrigger) Fire(ctx context.Context, local scenario.Endpoint) error {
	if t.conn == nil {
		return fmt.Errorf("trigger not opened")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(t.conn, "%s %d\n", local.Host, local.Port); err != nil {
		return fmt.Errorf("failed to send trigger: %w", err)
	}

	buf := make([]byte, 8192)
	if err := t.conn.SetReadDeadline(time.Now().Add(drainWindow)); err == nil {
		_, _ = t.conn.Read(buf)
		t.conn.SetReadDeadline(time.Time{})
	}
	return nil
}

// Close closes the control connection
func (t *TCPTrigger) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
