package transport

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"
)

func TestLocalPipeRoundTrip(t *testing.T) {
	a, b := NewLocalPipe()
	defer a.Close()
	defer b.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := a.Send([]byte("hello")); err != nil {
			t.Error(err)
		}
	}()

	buf := make([]byte, 5)
	if _, err := io.ReadFull(b, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "hello" {
		t.Fatalf("got %q, want hello", buf)
	}
	<-done
}

func (p *LocalPipe) Read(b []byte) (int, error) { return p.Receive(b) }

func TestNewConfigRejectsSubSecondTimeout(t *testing.T) {
	if _, err := NewConfig(500*time.Millisecond, 0, 0); err != ErrZeroTimeout {
		t.Fatalf("got %v, want ErrZeroTimeout", err)
	}
}

func TestNewConfigRejectsNegativeRateLimit(t *testing.T) {
	if _, err := NewConfig(0, 0, -1); err != ErrZeroRateLimit {
		t.Fatalf("got %v, want ErrZeroRateLimit", err)
	}
}

func TestNewConfigDefaultsRetries(t *testing.T) {
	cfg, err := NewConfig(0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Retries != DefaultRetries {
		t.Fatalf("Retries = %d, want %d", cfg.Retries, DefaultRetries)
	}
}

func TestStderrRingTruncates(t *testing.T) {
	r := newStderrRing(8)
	r.Write([]byte("0123456789"))
	buf, truncated := r.Snapshot()
	if !truncated {
		t.Fatal("expected truncated=true")
	}
	if len(buf) != 8 {
		t.Fatalf("len(buf) = %d, want 8", len(buf))
	}
}

func TestTCPDialAndEcho(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(conn, conn)
	}()

	cfg, err := NewConfig(2*time.Second, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	tr, err := DialTCP(ln.Addr().String(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	if _, err := tr.Send([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(readerFunc(tr.Receive), buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte("ping")) {
		t.Fatalf("got %q, want ping", buf)
	}
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
