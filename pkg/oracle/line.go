/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: line.go
Description: Line-oriented TCP concretizer. The target connects to the local endpoint and
the symbols travel as text: one line per sent symbol, and "+"-joined response symbols per
received line. Any target fronted by a small text harness can be learned this way.
*/

package oracle

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/kleascm/akaylee-tlsfsm/pkg/automaton"
	"github.com/kleascm/akaylee-tlsfsm/pkg/logging"
	"github.com/kleascm/akaylee-tlsfsm/pkg/scenario"
	"github.com/sirupsen/logrus"
)

// LineConcretizer accepts one target connection at a time on the local endpoint
type LineConcretizer struct {
	local    scenario.Endpoint
	logger   *logrus.Logger
	listener *net.TCPListener
	conn     net.Conn
	reader   *bufio.Reader
	pending  string
}

// NewLineConcretizer creates a concretizer listening on local once opened
func NewLineConcretizer(local scenario.Endpoint, logger *logrus.Logger) *LineConcretizer {
	return &LineConcretizer{local: local, logger: logging.OrDiscard(logger)}
}

// Addr returns the listening address, or nil before Open
func (c *LineConcretizer) Addr() net.Addr {
	if c.listener == nil {
		return nil
	}
	return c.listener.Addr()
}

// Open starts listening
func (c *LineConcretizer) Open(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", c.local.String())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", c.local, err)
	}
	c.listener = ln.(*net.TCPListener)
	return nil
}

// Accept closes any previous target connection and waits for the target to connect
func (c *LineConcretizer) Accept(ctx context.Context, timeout time.Duration) error {
	if c.listener == nil {
		return fmt.Errorf("concretizer not opened")
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.Disconnect(); err != nil {
		c.logger.WithError(err).Debug("Failed to close previous target connection")
	}
	ln := c.listener
	if err := ln.SetDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { ln.SetDeadline(time.Now()) })
	defer stop()

	conn, err := ln.Accept()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("failed to accept target connection: %w", err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.pending = ""
	c.logger.WithField("remote", conn.RemoteAddr().String()).Debug("Target connected")
	return nil
}

// Send writes one symbol line
func (c *LineConcretizer) Send(ctx context.Context, symbol string) error {
	if c.conn == nil {
		return ErrConnectionLost
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.conn.Write([]byte(symbol + "\n"))
	return err
}

// ReadNext reads one response line within timeout
func (c *LineConcretizer) ReadNext(ctx context.Context, timeout time.Duration) ([]string, error) {
	if c.conn == nil {
		return nil, ErrConnectionLost
	}
	conn := c.conn
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()

	line, err := c.reader.ReadString('\n')
	c.pending += line
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case isTimeout(err):
			return []string{}, nil
		case IsConnectionLost(err):
			return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
		default:
			return nil, err
		}
	}

	full := strings.TrimRight(c.pending, "\r\n")
	c.pending = ""
	symbols := automaton.SplitOutputs(full)
	if symbols == nil {
		symbols = []string{}
	}
	return symbols, nil
}

// Disconnect closes the target connection
func (c *LineConcretizer) Disconnect() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// Close closes the target connection and stops listening
func (c *LineConcretizer) Close() error {
	err := c.Disconnect()
	if c.listener != nil {
		if lerr := c.listener.Close(); err == nil {
			err = lerr
		}
		c.listener = nil
	}
	return err
}
