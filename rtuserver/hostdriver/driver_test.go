// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package hostdriver

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// fakePort is a minimal io.ReadWriteCloser standing in for the serial
// port: Write is configurable to simulate a short write or an error,
// and blocks on a gate so the test can observe that Send returns to
// its caller before the write has actually completed.
type fakePort struct {
	mu       sync.Mutex
	written  []byte
	writeErr error
	shortBy  int
	gate     chan struct{} // closed to let Write proceed
}

func newFakePort() *fakePort {
	return &fakePort{gate: make(chan struct{})}
}

func (p *fakePort) Write(b []byte) (int, error) {
	<-p.gate
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, b...)
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return len(b) - p.shortBy, nil
}

func (p *fakePort) Read([]byte) (int, error) { return 0, io.EOF }
func (p *fakePort) Close() error             { return nil }

// fakeEngine records the calls hostdriver.Driver makes back into the
// engine, so a test can tell Send apart from a call it would have made
// re-entrantly versus one it made from its own goroutine.
type fakeEngine struct {
	mu         sync.Mutex
	fedBytes   []byte
	fedErrors  int
	timerFires int
}

func (e *fakeEngine) Feed(b byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fedBytes = append(e.fedBytes, b)
}

func (e *fakeEngine) FeedError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fedErrors++
}

func (e *fakeEngine) TimerFired() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timerFires++
}

// TestSendDoesNotBlockCaller is the regression test for the reentrant
// deadlock: Send must return to its caller immediately, deferring the
// actual write (and the done/FeedError callback) to its own goroutine,
// since the caller is typically still holding Engine's internal lock.
func TestSendDoesNotBlockCaller(t *testing.T) {
	port := newFakePort()
	d := &Driver{port: port, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	d.engine = &fakeEngine{}

	done := make(chan struct{})
	returned := make(chan struct{})
	go func() {
		d.Send([]byte{0x01, 0x02}, func() { close(done) })
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatalf("Send blocked waiting on a write gated shut")
	}

	select {
	case <-done:
		t.Fatalf("done fired before the write was allowed to proceed")
	default:
	}

	close(port.gate)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("done was never invoked after the write completed")
	}
}

// TestSendInvokesFeedErrorOnShortWrite exercises the failure path:
// FeedError, not done, must be called, and likewise asynchronously.
func TestSendInvokesFeedErrorOnShortWrite(t *testing.T) {
	port := newFakePort()
	close(port.gate)
	port.shortBy = 1

	fe := &fakeEngine{}
	d := &Driver{port: port, logger: slog.New(slog.NewTextHandler(io.Discard, nil)), engine: fe}

	doneCalled := make(chan struct{})
	d.Send([]byte{0x01, 0x02}, func() { close(doneCalled) })

	deadline := time.After(time.Second)
	for {
		fe.mu.Lock()
		n := fe.fedErrors
		fe.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("FeedError was never observed after a short write")
		case <-time.After(time.Millisecond):
		}
	}

	select {
	case <-doneCalled:
		t.Fatalf("done must not be called after a short write")
	default:
	}
}

// TestSendInvokesFeedErrorOnWriteError mirrors the above for a hard
// write error rather than a short write.
func TestSendInvokesFeedErrorOnWriteError(t *testing.T) {
	port := newFakePort()
	close(port.gate)
	port.writeErr = errors.New("boom")

	fe := &fakeEngine{}
	d := &Driver{port: port, logger: slog.New(slog.NewTextHandler(io.Discard, nil)), engine: fe}

	var doneCalled bool
	d.Send([]byte{0xAA}, func() { doneCalled = true })

	deadline := time.After(time.Second)
	for {
		fe.mu.Lock()
		n := fe.fedErrors
		fe.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("FeedError was never observed after a failed write")
		case <-time.After(time.Millisecond):
		}
	}
	if doneCalled {
		t.Fatalf("done must not be called on a write error")
	}
}
