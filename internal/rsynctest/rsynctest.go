// Package rsynctest starts in-process rsync daemons for tests to sync
// against, and provides the shared fixtures (device nodes, large
// patterned data files, an external rsync binary) the integration
// tests build their scenarios from.
package rsynctest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/oferchen/ocrsync/internal/anonssh"
	"github.com/oferchen/ocrsync/internal/maincmd"
	"github.com/oferchen/ocrsync/internal/rsyncdconfig"
	"github.com/oferchen/ocrsync/internal/rsyncos"
	"github.com/oferchen/ocrsync/internal/testlogger"
	"github.com/oferchen/ocrsync/rsyncd"
)

// AnyRsync returns the path to an rsync binary found on PATH, skipping
// the calling test if none is installed.
func AnyRsync(t testing.TB) string {
	t.Helper()
	path, err := exec.LookPath("rsync")
	if err != nil {
		t.Skip("skipping: rsync not found on PATH")
	}
	return path
}

// TestServer is an rsync daemon listening on localhost for the
// duration of one test.
type TestServer struct {
	// Port is the TCP port the daemon accepts connections on.
	Port string

	modules   []rsyncd.Module
	listeners []rsyncdconfig.Listener
}

// Option configures a TestServer before it starts listening.
type Option func(*TestServer)

// InteropModule serves path as a writable module named "interop", the
// module name the integration tests dial.
func InteropModule(path string) Option {
	return func(ts *TestServer) {
		ts.modules = append(ts.modules, rsyncd.Module{
			Name:     "interop",
			Path:     path,
			Writable: true,
		})
	}
}

// Listeners overrides the default plain-rsyncd listener, e.g. to serve
// the protocol over anonymous SSH instead.
func Listeners(lns []rsyncdconfig.Listener) Option {
	return func(ts *TestServer) {
		ts.listeners = lns
	}
}

// New starts a TestServer on a kernel-assigned localhost port and
// registers its shutdown with t.Cleanup.
func New(t testing.TB, opts ...Option) *TestServer {
	t.Helper()

	ts := &TestServer{}
	for _, o := range opts {
		o(ts)
	}
	if len(ts.listeners) == 0 {
		ts.listeners = []rsyncdconfig.Listener{{Rsyncd: "localhost:0"}}
	}

	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	_, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	ts.Port = port

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	stderr := testlogger.New(t)
	osenv := &rsyncos.Env{Stderr: stderr, DontRestrict: true}

	if ts.listeners[0].AnonSSH != "" {
		cfg := &rsyncdconfig.Config{
			Listeners: ts.listeners,
			Modules:   ts.modules,
		}
		sshListener, err := anonssh.ListenerFromConfig(osenv, ts.listeners[0])
		if err != nil {
			t.Fatal(err)
		}
		go func() {
			err := anonssh.Serve(ctx, osenv, ln, sshListener, cfg, func(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
				env := &rsyncos.Env{
					Stdin:  stdin,
					Stdout: stdout,
					Stderr: stderr,
					// The test process would exceed the Landlock layer
					// budget if every connection stacked another ruleset.
					DontRestrict: true,
				}
				_, err := maincmd.Main(ctx, env, args, cfg)
				return err
			})
			if err != nil && ctx.Err() == nil {
				osenv.Logf("anonssh.Serve: %v", err)
			}
		}()
		return ts
	}

	srv, err := rsyncd.NewServer(ts.modules,
		rsyncd.WithStderr(stderr),
		rsyncd.DontRestrict())
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		if err := srv.Serve(ctx, ln); err != nil && ctx.Err() == nil {
			osenv.Logf("rsyncd.Serve: %v", err)
		}
	}()
	return ts
}

// Segment sizes of the large patterned data file; chosen so that the
// file spans many checksum blocks and a body-only change leaves the
// head and end segments matchable.
const (
	headSize = 1 * 1024 * 1024
	bodySize = 1*1024*1024 + 4096
	endSize  = 1 * 1024 * 1024
)

func repeatToSize(pattern []byte, size int) []byte {
	out := bytes.Repeat(pattern, size/len(pattern)+1)
	return out[:size]
}

// WriteLargeDataFile (re)writes dir/large-data-file as three repeated
// patterns (head, body, end), so tests can change one segment and
// verify only that segment's data travels on the wire.
func WriteLargeDataFile(t testing.TB, dir string, headPattern, bodyPattern, endPattern []byte) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	buf.Write(repeatToSize(headPattern, headSize))
	buf.Write(repeatToSize(bodyPattern, bodySize))
	buf.Write(repeatToSize(endPattern, endSize))
	fn := filepath.Join(dir, "large-data-file")
	if err := os.WriteFile(fn, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

// DataFileMatches verifies fn contains exactly the three patterned
// segments WriteLargeDataFile produces.
func DataFileMatches(fn string, headPattern, bodyPattern, endPattern []byte) error {
	got, err := os.ReadFile(fn)
	if err != nil {
		return err
	}
	want := headSize + bodySize + endSize
	if len(got) != want {
		return fmt.Errorf("%s: unexpected size: got %d, want %d", fn, len(got), want)
	}
	if !bytes.Equal(got[:headSize], repeatToSize(headPattern, headSize)) {
		return fmt.Errorf("%s: head segment does not match pattern %x", fn, headPattern)
	}
	if !bytes.Equal(got[headSize:headSize+bodySize], repeatToSize(bodyPattern, bodySize)) {
		return fmt.Errorf("%s: body segment does not match pattern %x", fn, bodyPattern)
	}
	if !bytes.Equal(got[headSize+bodySize:], repeatToSize(endPattern, endSize)) {
		return fmt.Errorf("%s: end segment does not match pattern %x", fn, endPattern)
	}
	return nil
}
