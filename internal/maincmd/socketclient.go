package maincmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/oferchen/ocrsync"
	"github.com/oferchen/ocrsync/internal/rsyncopts"
	"github.com/oferchen/ocrsync/internal/rsyncwire"
	"github.com/oferchen/ocrsync/internal/rsyncos"
	"github.com/oferchen/ocrsync/internal/rsyncstats"
)

// serverOptions reconstructs the long-form flag list a remote rsync
// server process needs to reproduce this invocation's behavior.
// rsync/options.c:server_options, restricted to the flags this module
// implements; unlike upstream, bundling short options is not attempted
// since these are only ever read back by our own ParseArguments.
func serverOptions(opts *rsyncopts.Options) []string {
	args := []string{"--server"}
	if opts.Sender() {
		args = append(args, "--sender")
	}
	if opts.Recurse() {
		args = append(args, "--recursive")
	}
	if opts.Verbose() {
		args = append(args, "-v")
	}
	if opts.DryRun() {
		args = append(args, "--dry-run")
	}
	if opts.UpdateOnly() {
		args = append(args, "--update")
	}
	if opts.AlwaysChecksum() {
		args = append(args, "--checksum")
	}
	if opts.PreserveLinks() {
		args = append(args, "--links")
	}
	if opts.PreservePerms() {
		args = append(args, "--perms")
	}
	if opts.PreserveMTimes() {
		args = append(args, "--times")
	}
	if opts.PreserveDevices() {
		args = append(args, "--devices")
	}
	if opts.PreserveSpecials() {
		args = append(args, "--specials")
	}
	if opts.PreserveUid() {
		args = append(args, "--owner")
	}
	if opts.PreserveGid() {
		args = append(args, "--group")
	}
	if opts.PreserveHardLinks() {
		args = append(args, "--hard-links")
	}
	if opts.DeleteMode() {
		args = append(args, "--delete")
	}
	if opts.PreallocateFiles() {
		args = append(args, "--preallocate")
	}
	if opts.RemoveSourceFiles() {
		args = append(args, "--remove-source-files")
	}
	if opts.IgnoreMissingArgs() {
		args = append(args, "--ignore-missing-args")
	}
	if opts.DeleteMissingArgs() {
		args = append(args, "--delete-missing-args")
	}
	if opts.DeleteExcluded() {
		args = append(args, "--delete-excluded")
	}
	if kb := opts.BwLimitKBytes(); kb > 0 {
		args = append(args, fmt.Sprintf("--bwlimit=%d", kb))
	}
	if bs := opts.BlockSize(); bs > 0 {
		args = append(args, fmt.Sprintf("--block-size=%d", bs))
	}
	if t := opts.IoTimeoutSeconds(); t > 0 {
		args = append(args, fmt.Sprintf("--timeout=%d", t))
	}
	return args
}

// socketClient dials a daemon directly over TCP (no remote shell
// involved), as used for rsync://host/module and host::module
// hostspecs. rsync/clientserver.c:start_socket_client.
func socketClient(ctx context.Context, osenv *rsyncos.Env, opts *rsyncopts.Options, host, path string, port int, other string) (*rsyncstats.TransferStats, error) {
	if port == 0 {
		port = 873
	}
	module := path
	rest := ""
	if idx := strings.IndexByte(path, '/'); idx > -1 {
		module = path[:idx]
		rest = path[idx+1:]
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var rwc io.ReadWriter = conn
	if t := opts.IoTimeoutSeconds(); t > 0 {
		rwc = &deadlineConn{conn: conn, timeout: time.Duration(t) * time.Second}
	}

	rd := bufio.NewReader(rwc)
	done, err := startInbandExchange(osenv, opts, rd, rwc, module, rest)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, nil
	}

	// The daemon greeting already exchanged protocol versions, so the
	// binary handshake clientRun would otherwise perform is skipped.
	// Keep reading through rd: it may already have buffered bytes past
	// the text exchange.
	return clientRun(osenv, opts, &readWriter{r: rd, w: rwc}, []string{other}, false)
}

// deadlineConn arms a fresh read deadline ahead of every read, so a
// peer that goes silent for longer than --timeout surfaces as
// rsyncwire.ErrIoTimeout (exit code 30) instead of hanging the session.
type deadlineConn struct {
	conn    net.Conn
	timeout time.Duration
}

func (d *deadlineConn) Read(p []byte) (int, error) {
	if err := d.conn.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
		return 0, err
	}
	n, err := d.conn.Read(p)
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return n, rsyncwire.ErrIoTimeout
	}
	return n, err
}

func (d *deadlineConn) Write(p []byte) (int, error) { return d.conn.Write(p) }

// startInbandExchange performs the @RSYNCD: text handshake from the
// client side: greeting exchange, module selection (or listing, when
// module is empty), ACL/OK confirmation, and the server-argument flag
// list. Mirrors rsyncd.Server.HandleDaemonConn from the other end of the
// wire. done is true when the caller only requested a module listing and
// the connection is already finished. The caller owns rd and must keep
// reading through it afterwards, since it may buffer past the text
// exchange.
func startInbandExchange(osenv *rsyncos.Env, opts *rsyncopts.Options, rd *bufio.Reader, conn io.Writer, module, path string) (done bool, err error) {
	serverGreeting, err := rd.ReadString('\n')
	if err != nil {
		return false, err
	}
	if !strings.HasPrefix(serverGreeting, "@RSYNCD: ") {
		return false, fmt.Errorf("invalid server greeting: got %q", serverGreeting)
	}

	if _, err := fmt.Fprintf(conn, "@RSYNCD: %d\n", ocrsync.LatestProtocolVersion); err != nil {
		return false, err
	}

	if _, err := fmt.Fprintf(conn, "%s\n", module); err != nil {
		return false, err
	}

	if module == "" {
		for {
			line, err := rd.ReadString('\n')
			if err != nil {
				return false, err
			}
			line = strings.TrimRight(line, "\n")
			if line == "@RSYNCD: EXIT" {
				return true, nil
			}
			fmt.Fprintln(osenv.Stdout, line)
		}
	}

	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return false, err
		}
		line = strings.TrimRight(line, "\n")
		if strings.HasPrefix(line, "@ERROR") {
			return false, fmt.Errorf("%s", line)
		}
		if line == "@RSYNCD: OK" {
			break
		}
	}

	args := append(serverOptions(opts), ".", path)
	for _, a := range args {
		if _, err := fmt.Fprintf(conn, "%s\n", a); err != nil {
			return false, err
		}
	}
	if _, err := io.WriteString(conn, "\n"); err != nil {
		return false, err
	}

	return false, nil
}
