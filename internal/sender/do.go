package sender

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oferchen/ocrsync/internal/checksum"
	"github.com/oferchen/ocrsync/internal/filter"
	"github.com/oferchen/ocrsync/internal/rsyncstats"
	"github.com/oferchen/ocrsync/internal/rsyncwire"
)

// Do drives one sending session to completion: send the exclusion list
// (only in delete mode, and only when exclude is nil), build and send
// the file list for the
// requested source, then answer each Checksums request from the
// receiver's generator with a token stream (rsync/main.c:do_server_sender
// and client_run's sender branch).
//
// root is the directory paths are resolved under: the module path for
// a daemon session, or empty for a plain client whose paths are
// already full. A path without a trailing slash wraps its walk root in
// a single named top-level entry; a trailing slash (or "." for a
// module root) sends the directory's contents directly. exclude is
// nil when this Transfer is itself responsible for sending the
// exclusion list (the plain client's sender path); non-nil when the
// caller already received one on this Transfer's behalf (the daemon's
// sender path, which always reads the list before dispatching to a
// role-specific handler).
func (rt *Transfer) Do(crd *rsyncwire.CountingReader, cwr *rsyncwire.CountingWriter, root string, paths []string, exclude *FilterList) (*rsyncstats.TransferStats, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("sender: no source paths given")
	}
	// The receiving server only expects an exclusion list ahead of the
	// file list when delete mode is active (the list gates its delete
	// decisions); sending one unconditionally would desynchronize the
	// stream.
	if exclude == nil && rt.Opts.DeleteMode() {
		if err := SendFilterList(rt.Conn, &FilterList{Filters: rt.Opts.FilterRules()}); err != nil {
			return nil, err
		}
	}

	// TODO: support more than one source path per session
	path := paths[0]
	base := path
	if root != "" {
		base = filepath.Join(root, path)
	}
	var prefix string
	if path != "." && path != "./" && !strings.HasSuffix(path, "/") {
		prefix = filepath.Base(base)
	}

	// The rule set gating the walk: the list the peer sent on our
	// behalf (daemon sessions), or this invocation's own
	// --filter/--include/--exclude flags (plain client sessions).
	// Per-directory merge files are resolved beneath the walk root.
	var rules []filter.Rule
	var err error
	if exclude != nil {
		rules, err = exclude.Rules()
	} else {
		rules, err = filter.Parse([]byte(strings.Join(rt.Opts.FilterRules(), "\n")), os.ReadFile)
	}
	if err != nil {
		return nil, err
	}
	m := filter.NewMatcher(rules, func(p string) ([]byte, error) {
		return os.ReadFile(filepath.Join(base, p))
	})
	fileList, err := rt.buildFileList(base, prefix, m)
	if err != nil {
		return nil, err
	}
	if rt.Opts.Verbose() {
		rt.Logger.Printf("sending %d names", len(fileList))
	}
	if err := rt.sendFileList(fileList); err != nil {
		return nil, err
	}

	totalSize, err := rt.sendFiles(fileList)
	if err != nil {
		return nil, err
	}

	if err := rt.Conn.WriteInt64(crd.Bytes); err != nil {
		return nil, err
	}
	if err := rt.Conn.WriteInt64(cwr.Bytes); err != nil {
		return nil, err
	}
	if err := rt.Conn.WriteInt64(totalSize); err != nil {
		return nil, err
	}

	// Consume the receiver's final goodbye message.
	if _, err := rt.Conn.ReadInt32(); err != nil && err != io.EOF {
		return nil, err
	}

	return &rsyncstats.TransferStats{
		Read:    crd.Bytes,
		Written: cwr.Bytes,
		Size:    totalSize,
	}, nil
}

// sendFiles answers each Checksums request the generator sends for a
// regular file with the file's index, the echoed checksum header, and
// the matching token stream. The generator ends each phase with a -1
// index; the first is echoed back (so the receiver advances its phase
// too), the second ends the transfer (rsync/sender.c:send_files).
func (rt *Transfer) sendFiles(fileList []*File) (int64, error) {
	var totalSize int64
	phase := 0
	for {
		idx, err := rt.Conn.ReadInt32()
		if err != nil {
			return 0, err
		}
		if idx == -1 {
			if phase == 0 {
				phase++
				if err := rt.Conn.WriteInt32(-1); err != nil {
					return 0, err
				}
				continue
			}
			break
		}
		if int(idx) < 0 || int(idx) >= len(fileList) {
			return 0, fmt.Errorf("sender: file index %d out of range (have %d files)", idx, len(fileList))
		}

		head, sums, err := checksum.ReadSums(rt.Conn.Reader)
		if err != nil {
			return 0, err
		}
		if rt.Opts.Verbose() {
			rt.Logger.Printf("sending file idx=%d: %q", idx, fileList[idx].Name)
		}
		if err := rt.Conn.WriteInt32(idx); err != nil {
			return 0, err
		}
		if _, err := head.WriteTo(rt.Conn.Writer); err != nil {
			return 0, err
		}
		n, err := rt.sendFile(fileList[idx], head, sums)
		if err != nil {
			return 0, err
		}
		totalSize += n
		if rt.Opts.RemoveSourceFiles() {
			// The file's data is fully on the wire; unlink the source
			// (directories are never unlinked since only regular files
			// are requested by index).
			if err := os.Remove(rt.localPath(fileList[idx].Name)); err != nil {
				return 0, err
			}
		}
	}
	if err := rt.Conn.WriteInt32(-1); err != nil {
		return 0, err
	}
	return totalSize, nil
}
