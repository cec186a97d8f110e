/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: line_test.go
Description: Loopback tests for the line concretizer and the TCP trigger. A fake trigger
script starts a text target each time it is triggered.
*/

package oracle_test

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kleascm/akaylee-tlsfsm/pkg/oracle"
	"github.com/kleascm/akaylee-tlsfsm/pkg/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freeEndpoint reserves a loopback port
func freeEndpoint(t *testing.T) scenario.Endpoint {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return scenario.Endpoint{Host: "127.0.0.1", Port: port}
}

// runTextTarget answers one line per received symbol until Close or an unknown symbol
func runTextTarget(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		switch strings.TrimSpace(line) {
		case "ClientHello":
			fmt.Fprint(conn, "ServerHello+Certificate\n")
		case "Finished":
			fmt.Fprint(conn, "Finished\n")
		case "Ping":
			// silent
		default:
			return
		}
	}
}

// startTriggerScript listens for trigger lines and connects a new target for each
func startTriggerScript(t *testing.T, wg *sync.WaitGroup) scenario.Endpoint {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	wg.Add(1)
	go func() {
		defer wg.Done()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			var host string
			var port int
			if _, err := fmt.Sscanf(line, "%s %d", &host, &port); err != nil {
				return
			}
			target, err := net.Dial("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
			if err != nil {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				runTextTarget(target)
			}()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return scenario.Endpoint{Host: "127.0.0.1", Port: addr.Port}
}

// TestLineConcretizerWithTrigger tests full queries over loopback TCP
func TestLineConcretizerWithTrigger(t *testing.T) {
	var wg sync.WaitGroup
	triggerEndpoint := startTriggerScript(t, &wg)

	opts := oracle.Options{
		LocalEndpoint:   freeEndpoint(t),
		TriggerEndpoint: &triggerEndpoint,
		Timeout:         300 * time.Millisecond,
	}
	concretizer := oracle.NewLineConcretizer(opts.LocalEndpoint, nil)
	trigger := oracle.NewTCPTrigger(triggerEndpoint, time.Second)
	kb, err := oracle.NewKnowledgeBase(opts, concretizer, trigger, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, kb.Start(ctx))
	require.NotNil(t, concretizer.Addr())

	out, err := kb.Resolve(ctx, []string{"ClientHello", "Ping", "Finished", "Close", "ClientHello"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ServerHello+Certificate", oracle.NoResponse, "Finished", oracle.EOF, oracle.EOF}, out)

	out, err = kb.Resolve(ctx, []string{"Finished", "ClientHello"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Finished", "ServerHello+Certificate"}, out)
	assert.False(t, kb.Broken())

	require.NoError(t, kb.Stop())
	wg.Wait()
}

// TestLineConcretizerAcceptTimeout tests that a silent target breaks the session
func TestLineConcretizerAcceptTimeout(t *testing.T) {
	local := freeEndpoint(t)
	concretizer := oracle.NewLineConcretizer(local, nil)
	ctx := context.Background()
	require.NoError(t, concretizer.Open(ctx))
	defer concretizer.Close()

	start := time.Now()
	err := concretizer.Accept(ctx, 50*time.Millisecond)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	_, err = concretizer.ReadNext(ctx, time.Millisecond)
	assert.True(t, oracle.IsConnectionLost(err))
}

// TestLineConcretizerCancel tests that cancelling the context interrupts Accept
func TestLineConcretizerCancel(t *testing.T) {
	concretizer := oracle.NewLineConcretizer(freeEndpoint(t), nil)
	require.NoError(t, concretizer.Open(context.Background()))
	defer concretizer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := concretizer.Accept(ctx, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// dialAndDrain connects to local count times, answers one symbol per connection and
// reports how each connection ended once the oracle drops it
func dialAndDrain(local scenario.Endpoint, count int) <-chan error {
	released := make(chan error, count)
	go func() {
		for range count {
			conn, err := net.Dial("tcp", local.String())
			if err != nil {
				released <- err
				return
			}
			reader := bufio.NewReader(conn)
			if _, err := reader.ReadString('\n'); err == nil {
				fmt.Fprint(conn, "ServerHello\n")
			}
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			_, err = reader.ReadString('\n')
			conn.Close()
			released <- err
		}
	}()
	return released
}

func awaitRelease(t *testing.T, released <-chan error) {
	t.Helper()
	select {
	case err := <-released:
		assert.ErrorIs(t, err, io.EOF, "target connection must be closed after the query")
	case <-time.After(10 * time.Second):
		t.Fatal("target never saw the connection end")
	}
}

// TestSubmitWordReleasesTargetConnection tests that each query closes its target connection
func TestSubmitWordReleasesTargetConnection(t *testing.T) {
	local := freeEndpoint(t)
	opts := oracle.Options{LocalEndpoint: local, Timeout: 100 * time.Millisecond}
	concretizer := oracle.NewLineConcretizer(local, nil)
	kb, err := oracle.NewKnowledgeBase(opts, concretizer, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, kb.Start(ctx))
	defer kb.Stop()

	released := dialAndDrain(local, 2)
	for range 2 {
		out := kb.SubmitWord(ctx, []string{"ClientHello"})
		assert.Equal(t, []string{"ServerHello"}, out)
		awaitRelease(t, released)
	}
	assert.False(t, kb.Broken())
}

// TestLineConcretizerAcceptClosesPrevious tests that a new target replaces the old connection
func TestLineConcretizerAcceptClosesPrevious(t *testing.T) {
	local := freeEndpoint(t)
	concretizer := oracle.NewLineConcretizer(local, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, concretizer.Open(ctx))
	defer concretizer.Close()

	released := dialAndDrain(local, 2)
	require.NoError(t, concretizer.Accept(ctx, 0))
	require.NoError(t, concretizer.Send(ctx, "ClientHello"))
	out, err := concretizer.ReadNext(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"ServerHello"}, out)

	require.NoError(t, concretizer.Accept(ctx, 0))
	awaitRelease(t, released)
	require.NoError(t, concretizer.Disconnect())
	awaitRelease(t, released)
}
