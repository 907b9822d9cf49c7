// Package transport implements the uniform send/receive/stderr surface
// shared by the three ways this implementation talks
// to a peer: an in-memory/local pipe, a direct TCP connection to a
// daemon, and a spawned child process's stdio (SSH, "sh -c", or any
// other remote-shell command). Each carries the same framed byte
// stream; the engine and handshake layers are oblivious to which one
// backs a given session.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"sync"
	"time"
)

// Transport is the surface every backing implementation satisfies.
// Close releases any underlying resources (sockets, child processes).
type Transport interface {
	Send(p []byte) (int, error)
	Receive(p []byte) (int, error)
	// Stderr returns whatever diagnostic output the peer has produced
	// so far and whether it was truncated by the capacity bound.
	Stderr() ([]byte, bool)
	Close() error
}

// Config validates and carries the options shared by every transport
// kind. The zero value is invalid;
// always construct one via NewConfig so the validation runs.
type Config struct {
	Timeout   time.Duration
	Retries   int
	RateLimit int64 // bytes/sec; 0 means unlimited
}

// DefaultRetries is the retry count used when none is configured.
const DefaultRetries = 3

var (
	// ErrZeroTimeout is returned by NewConfig for a negative timeout or
	// a positive one below 1s. A zero timeout is not rejected: it is
	// accepted and means no timeout is applied.
	ErrZeroTimeout = errors.New("transport: timeout must be >= 1s")
	// ErrZeroRateLimit is returned when RateLimit is explicitly set to
	// a negative value (zero itself means "unlimited", see NewConfig).
	ErrZeroRateLimit = errors.New("transport: rate limit must be > 0 when set")
)

// NewConfig builds a validated Config. timeout of 0 means "no
// timeout configured" (not the same as an explicit invalid zero
// timeout — callers that want to reject that case should pass a
// positive value); retries of 0 substitutes DefaultRetries; a
// negative rateLimit is rejected outright: it describes a caller
// explicitly trying to construct a non-functional limiter, not
// "don't rate-limit at all".
func NewConfig(timeout time.Duration, retries int, rateLimit int64) (Config, error) {
	if timeout < 0 {
		return Config{}, ErrZeroTimeout
	}
	if timeout > 0 && timeout < time.Second {
		return Config{}, ErrZeroTimeout
	}
	if rateLimit < 0 {
		return Config{}, ErrZeroRateLimit
	}
	if retries <= 0 {
		retries = DefaultRetries
	}
	return Config{Timeout: timeout, Retries: retries, RateLimit: rateLimit}, nil
}

// stderrRing is a bounded capture buffer for a spawned peer's stderr
// stream: once it holds capacity bytes, further writes are dropped but
// recorded as a truncation.
type stderrRing struct {
	mu        sync.Mutex
	buf       []byte
	capacity  int
	truncated bool
}

func newStderrRing(capacity int) *stderrRing {
	return &stderrRing{capacity: capacity}
}

func (r *stderrRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	remaining := r.capacity - len(r.buf)
	if remaining <= 0 {
		r.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		r.buf = append(r.buf, p[:remaining]...)
		r.truncated = true
		return len(p), nil
	}
	r.buf = append(r.buf, p...)
	return len(p), nil
}

func (r *stderrRing) Snapshot() ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]byte, len(r.buf))
	copy(out, r.buf)
	return out, r.truncated
}

// stderrRingCapacity bounds how much peer stderr is retained.
const stderrRingCapacity = 32 << 10

// rateLimitedWriter throttles Write calls to at most limit bytes/sec,
// the same shape as a token bucket but simplified to one bucket
// refilled once per call: adequate for bounding a single transport's
// throughput without pulling in a scheduling library.
type rateLimitedWriter struct {
	w     io.Writer
	limit int64 // bytes/sec, 0 = unlimited

	mu     sync.Mutex
	last   time.Time
	tokens float64
}

func newRateLimitedWriter(w io.Writer, limit int64) io.Writer {
	if limit <= 0 {
		return w
	}
	return &rateLimitedWriter{w: w, limit: limit, last: time.Time{}}
}

// RateLimited wraps w so that writes through it are throttled to at
// most limit bytes/sec; limit <= 0 returns w unchanged. This is the
// same limiter the TCP and spawned-stdio transports apply to their own
// writers (LocalPipe applies none), exported for
// callers (the daemon's per-session --bwlimit) that already hold a
// connected stream.
func RateLimited(w io.Writer, limit int64) io.Writer {
	return newRateLimitedWriter(w, limit)
}

func (rw *rateLimitedWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	now := time.Now()
	if rw.last.IsZero() {
		rw.tokens = float64(rw.limit)
	} else {
		elapsed := now.Sub(rw.last).Seconds()
		rw.tokens += elapsed * float64(rw.limit)
		if rw.tokens > float64(rw.limit) {
			rw.tokens = float64(rw.limit)
		}
	}
	rw.last = now
	need := float64(len(p))
	var wait time.Duration
	if need > rw.tokens {
		deficit := need - rw.tokens
		wait = time.Duration(deficit / float64(rw.limit) * float64(time.Second))
		rw.tokens = 0
	} else {
		rw.tokens -= need
	}
	rw.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}
	return rw.w.Write(p)
}

// LocalPipe is an in-memory transport for local (same-host, no
// transport-layer) transfers, backed by an io.Pipe pair.
type LocalPipe struct {
	r io.ReadCloser
	w io.WriteCloser
}

// NewLocalPipe wires up a pair of connected LocalPipe endpoints: bytes
// written to one side's Send are readable from the other side's
// Receive, and vice versa.
func NewLocalPipe() (a, b *LocalPipe) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return &LocalPipe{r: ar, w: aw}, &LocalPipe{r: br, w: bw}
}

func (p *LocalPipe) Send(b []byte) (int, error)    { return p.w.Write(b) }
func (p *LocalPipe) Receive(b []byte) (int, error) { return p.r.Read(b) }
func (p *LocalPipe) Stderr() ([]byte, bool)        { return nil, false }
func (p *LocalPipe) Close() error {
	werr := p.w.Close()
	rerr := p.r.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// TCP connects to a daemon at addr.
type TCP struct {
	conn net.Conn
	w    io.Writer
}

// DialTCP opens a TCP transport, applying cfg's timeout as the dial
// deadline and wrapping the connection's writer with cfg's rate
// limit, if any.
func DialTCP(addr string, cfg Config) (*TCP, error) {
	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return &TCP{conn: conn, w: newRateLimitedWriter(conn, cfg.RateLimit)}, nil
}

func (t *TCP) Send(b []byte) (int, error)    { return t.w.Write(b) }
func (t *TCP) Receive(b []byte) (int, error) { return t.conn.Read(b) }
func (t *TCP) Stderr() ([]byte, bool)        { return nil, false }
func (t *TCP) Close() error                  { return t.conn.Close() }

// SpawnedStdio wires a child process's stdin/stdout as a transport,
// capturing its stderr into the bounded ring so a chatty or failing
// peer cannot grow memory without bound.
type SpawnedStdio struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	ring   *stderrRing
	w      io.Writer
}

// Spawn starts name with args, connecting its stdio as described
// above. tee, if non-nil, additionally receives every stderr byte live
// (e.g. the invoking user's own stderr), independent of the capped
// ring Stderr() reports from. Spawn reaps the process itself: Wait is
// invoked from a background goroutine so a slow-exiting child doesn't
// block the transport, and Close only closes the pipes.
func Spawn(name string, args []string, cfg Config, tee io.Writer) (*SpawnedStdio, error) {
	cmd := exec.Command(name, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	ring := newStderrRing(stderrRingCapacity)
	if tee != nil {
		cmd.Stderr = io.MultiWriter(ring, tee)
	} else {
		cmd.Stderr = ring
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("transport: spawning %s: %w", name, err)
	}
	go cmd.Wait() //nolint:errcheck // exit status observed via Stderr()/process state, not here

	return &SpawnedStdio{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		ring:   ring,
		w:      newRateLimitedWriter(stdin, cfg.RateLimit),
	}, nil
}

func (s *SpawnedStdio) Send(b []byte) (int, error)    { return s.w.Write(b) }
func (s *SpawnedStdio) Receive(b []byte) (int, error) { return s.stdout.Read(b) }
func (s *SpawnedStdio) Stderr() ([]byte, bool)        { return s.ring.Snapshot() }
func (s *SpawnedStdio) Close() error {
	werr := s.stdin.Close()
	rerr := s.stdout.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
