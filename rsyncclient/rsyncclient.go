// Package rsyncclient implements the client side of a transfer over an
// arbitrary io.ReadWriter: a subprocess's stdin/stdout, an in-process
// io.Pipe, or any other duplex byte stream already connected to an
// rsync-speaking peer. It performs the binary version handshake itself;
// callers that need the @RSYNCD: daemon greeting or a remote-shell
// dial should set that connection up before handing the stream to
// Run.
package rsyncclient

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oferchen/ocrsync"
	"github.com/oferchen/ocrsync/internal/filter"
	"github.com/oferchen/ocrsync/internal/handshake"
	"github.com/oferchen/ocrsync/internal/log"
	"github.com/oferchen/ocrsync/internal/receiver"
	"github.com/oferchen/ocrsync/internal/rsyncopts"
	"github.com/oferchen/ocrsync/internal/rsyncos"
	"github.com/oferchen/ocrsync/internal/rsyncwire"
	"github.com/oferchen/ocrsync/internal/sender"
)

// Option configures a Client at construction time.
type Option interface {
	apply(*Client)
}

type optionFunc func(*Client)

func (f optionFunc) apply(c *Client) { f(c) }

// WithSender makes the client act as the sender (the other end reads);
// without it, the client receives (the other end sends), matching
// rsync's convention that the client's role is the opposite of how the
// local command line reads (--sender flips it on the server side).
func WithSender() Option {
	return optionFunc(func(c *Client) {
		c.opts.SetSender()
	})
}

// Client is a parsed, ready-to-run rsync client invocation.
type Client struct {
	opts   *rsyncopts.Options
	logger log.Logger
	env    *rsyncos.Env
}

// New parses args (the same flags rsync's command line accepts, minus
// the source/destination positional arguments, which are supplied to
// Run instead) and applies opts.
func New(args []string, opts ...Option) (*Client, error) {
	env := &rsyncos.Env{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	pc, err := rsyncopts.ParseArguments(env, args)
	if err != nil {
		return nil, err
	}
	c := &Client{
		opts:   pc.Options,
		logger: log.New(env.Stderr),
		env:    env,
	}
	for _, o := range opts {
		o.apply(c)
	}
	return c, nil
}

// Run executes the transfer over rw: paths is the single source path
// when the client is a sender, or the single destination path when it
// is a receiver (rsync/main.c:client_run, adapted to a caller-supplied
// stream instead of a spawned subprocess).
func (c *Client) Run(ctx context.Context, rw io.ReadWriter, paths []string) error {
	_ = ctx // not yet threaded into per-file I/O; cancellation closes rw instead.

	crd, cwr := rsyncwire.CounterPair(rw, rw)
	conn := &rsyncwire.Conn{Reader: crd, Writer: cwr}

	if err := conn.WriteInt32(ocrsync.LatestProtocolVersion); err != nil {
		return fmt.Errorf("rsyncclient: sending protocol version: %w", err)
	}
	remoteProtocol, err := conn.ReadInt32()
	if err != nil {
		return fmt.Errorf("rsyncclient: reading remote protocol version: %w", err)
	}
	if _, err := handshake.NegotiateVersion(ocrsync.LatestProtocolVersion, remoteProtocol); err != nil {
		return fmt.Errorf("rsyncclient: remote protocol %d not supported", remoteProtocol)
	}
	seed, err := conn.ReadInt32()
	if err != nil {
		return fmt.Errorf("rsyncclient: reading checksum seed: %w", err)
	}

	mrd := &rsyncwire.MultiplexReader{Reader: rw}
	// TODO: rearchitect such that our buffer can be smaller than the
	// largest rsync message size.
	conn.Reader = bufio.NewReaderSize(mrd, 256*1024)

	if c.opts.Sender() {
		return c.runSender(conn, crd, cwr, paths, seed)
	}
	return c.runReceiver(conn, paths, seed)
}

func (c *Client) runSender(conn *rsyncwire.Conn, crd *rsyncwire.CountingReader, cwr *rsyncwire.CountingWriter, paths []string, seed int32) error {
	if len(paths) != 1 {
		return fmt.Errorf("rsyncclient: exactly one source path supported, got %q", paths)
	}
	st := &sender.Transfer{
		Logger: c.logger,
		Opts:   c.opts,
		Conn:   conn,
		Seed:   seed,
	}
	_, err := st.Do(crd, cwr, "", paths, nil)
	return err
}

func (c *Client) runReceiver(conn *rsyncwire.Conn, paths []string, seed int32) error {
	if len(paths) != 1 {
		return fmt.Errorf("rsyncclient: exactly one destination path supported, got %q", paths)
	}

	rt := &receiver.Transfer{
		Logger: c.logger,
		Opts: &receiver.TransferOpts{
			Verbose:           c.opts.Verbose(),
			DryRun:            c.opts.DryRun(),
			DeleteMode:        c.opts.DeleteMode(),
			PreserveGid:       c.opts.PreserveGid(),
			PreserveUid:       c.opts.PreserveUid(),
			PreserveLinks:     c.opts.PreserveLinks(),
			PreservePerms:     c.opts.PreservePerms(),
			PreserveDevices:   c.opts.PreserveDevices(),
			PreserveSpecials:  c.opts.PreserveSpecials(),
			PreserveTimes:     c.opts.PreserveMTimes(),
			PreserveHardlinks: c.opts.PreserveHardLinks(),
			Preallocate:       c.opts.PreallocateFiles(),
			BlockSize:         c.opts.BlockSize(),
		},
		Dest: paths[0],
		Env:  c.env,
		Conn: conn,
		Seed: seed,
	}

	// The client always sends its filter rules as the exclusion list;
	// the (sending) server folds them into its walk. The same rules
	// protect excluded destination paths from the delete pass.
	filterRules := c.opts.FilterRules()
	if err := sender.SendFilterList(conn, &sender.FilterList{Filters: filterRules}); err != nil {
		return err
	}
	if len(filterRules) > 0 && c.opts.DeleteMode() && !c.opts.DeleteExcluded() {
		rules, err := filter.Parse([]byte(strings.Join(filterRules, "\n")), os.ReadFile)
		if err != nil {
			return err
		}
		rt.Matcher = filter.NewMatcher(rules, func(p string) ([]byte, error) {
			return os.ReadFile(filepath.Join(rt.Dest, p))
		})
	}

	fileList, err := rt.ReceiveFileList()
	if err != nil {
		return err
	}
	_, err = rt.Do(conn, fileList, false)
	return err
}
