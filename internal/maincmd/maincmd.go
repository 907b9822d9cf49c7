// Package maincmd implements a subset of the '$ rsync' CLI surface, namely that it can:
//   - serve as a server daemon over TCP or SSH (via SSH session stdin/stdout)
//   - act as "client" CLI for connecting to the server
//   - let both "client" and "server" act as either the sender or the receiver
package maincmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oferchen/ocrsync/internal/anonssh"
	"github.com/oferchen/ocrsync/internal/log"
	"github.com/oferchen/ocrsync/internal/metrics"
	"github.com/oferchen/ocrsync/internal/restrict"
	"github.com/oferchen/ocrsync/internal/rsyncdconfig"
	"github.com/oferchen/ocrsync/internal/rsyncopts"
	"github.com/oferchen/ocrsync/internal/rsyncos"
	"github.com/oferchen/ocrsync/internal/rsyncstats"
	"github.com/oferchen/ocrsync/rsyncd"

	// For profiling and debugging
	_ "net/http/pprof"
)

func version(osenv *rsyncos.Env) {
	osenv.Logf("oc-rsync, pid %d", os.Getpid())
}

type readWriter struct {
	r io.Reader
	w io.Writer
}

func (r *readWriter) Read(p []byte) (n int, err error)  { return r.r.Read(p) }
func (r *readWriter) Write(p []byte) (n int, err error) { return r.w.Write(p) }

// readerFunc and writerFunc adapt a transport.Transport's Send/Receive
// methods to the plain io.Reader/io.Writer readWriter expects.
type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// sinkOverrides tees diagnostic logging into the file paths the
// OC_RSYNC_SYSLOG_PATH / OC_RSYNC_JOURNALD_PATH overrides name, in
// place of the real syslog/journald sinks this module does not carry.
func sinkOverrides(osenv *rsyncos.Env) {
	var writers []io.Writer
	if osenv.Stderr != nil {
		writers = append(writers, osenv.Stderr)
	}
	base := len(writers)
	for _, path := range []string{rsyncos.SyslogPath(), rsyncos.JournaldPath()} {
		if path == "" {
			continue
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			osenv.Logf("log sink override %s: %v", path, err)
			continue
		}
		writers = append(writers, f)
	}
	if len(writers) > base {
		log.SetLogger(log.New(io.MultiWriter(writers...)))
	}
}

func Main(ctx context.Context, osenv *rsyncos.Env, args []string, cfg *rsyncdconfig.Config) (*rsyncstats.TransferStats, error) {
	sinkOverrides(osenv)
	osenv.Logf("Main(osenv=%v, args=%q)", osenv, args)
	pc, err := rsyncopts.ParseArguments(osenv, args[1:])
	if err != nil {
		if pe, ok := err.(*rsyncopts.PoptError); ok &&
			pe.Errno == rsyncopts.POPT_ERROR_BADOPT &&
			strings.HasPrefix(pe.Option, "--ocr.") {
			return nil, fmt.Errorf("%v (you need to specify --daemon before flags starting with --ocr are available)", pe)
		}
		return nil, err
	}
	opts := pc.Options
	remaining := pc.RemainingArgs
	// osenv.Logf("remaining: %v", remaining)

	// calling convention: daemon mode over remote shell (also builtin SSH)
	// Example: --server --daemon .
	if opts.Daemon() && opts.Server() {
		// start_daemon()
		if cfg == nil {
			var err error
			cfg, _, err = rsyncdconfig.FromDefaultFiles()
			if err != nil {
				return nil, err
			}
		}
		rsyncdOpts := []rsyncd.Option{
			rsyncd.WithStderr(osenv.Stderr),
		}
		if osenv.DontRestrict {
			rsyncdOpts = append(rsyncdOpts, rsyncd.DontRestrict())
		}
		srv, err := rsyncd.NewServer(cfg.Modules, rsyncdOpts...)
		if err != nil {
			return nil, err
		}
		conn := srv.NewConnection(osenv.Stdin, osenv.Stdout)
		return nil, srv.HandleDaemonConn(ctx, osenv, conn, nil)
	}

	// calling convention: command mode (over remote shell or locally)
	// Example: --server --sender -vvvvlogDtpre.iLsfxCIvu . .
	if opts.Server() {
		// start_server()
		srv, err := rsyncd.NewServer(nil, rsyncd.WithStderr(osenv.Stderr))
		if err != nil {
			return nil, err
		}

		// TODO: remove duplication with handleDaemonConn
		if len(remaining) < 2 {
			return nil, fmt.Errorf("invalid args: at least one directory required")
		}
		if got, want := remaining[0], "."; got != want {
			return nil, fmt.Errorf("protocol error: got %q, expected %q", got, want)
		}
		paths := remaining[1:]
		if opts.Verbose() {
			osenv.Logf("paths: %q", paths)
		}
		var roDirs, rwDirs []string
		if opts.Sender() {
			roDirs = append(roDirs, paths...)
		} else {
			for _, path := range paths {
				if err := os.MkdirAll(path, 0755); err != nil {
					return nil, err
				}
			}
			rwDirs = append(rwDirs, paths...)
		}
		if osenv.Restrict() {
			if err := restrict.MaybeFileSystem(roDirs, rwDirs); err != nil {
				return nil, err
			}
		}
		conn := srv.NewConnection(osenv.Stdin, osenv.Stdout)
		return nil, srv.InternalHandleConn(ctx, conn, nil, pc)
	}

	if !opts.Daemon() {
		if !osenv.DontRestrict {
			osenv.DontRestrict = opts.OcClient.DontRestrict == 1
		}
		return clientMain(ctx, osenv, opts, remaining)
	}

	// daemon_main()

	// calling convention: start a daemon in TCP listening mode (or with systemd
	// socket activation)

	var cfgfn string
	var cfgErr error
	if cfg == nil {
		if opts.OcDaemon.Config != "" {
			cfgfn = opts.OcDaemon.Config
			cfg, cfgErr = rsyncdconfig.FromFile(cfgfn)
		} else {
			cfg, cfgfn, cfgErr = rsyncdconfig.FromDefaultFiles()
		}
		if cfgErr != nil {
			if os.IsNotExist(cfgErr) {
				osenv.Logf("config file not found, relying on flags")
				// a non-existant config file is not an error: users can start
				// oc-rsyncd with e.g. the -ocr.listen and -ocr.modulemap flags.
				cfg = &rsyncdconfig.Config{
					Listeners: []rsyncdconfig.Listener{
						{
							Rsyncd:  opts.OcDaemon.Listen,
							AnonSSH: opts.OcDaemon.AnonSSHListen,
						},
					},
					Modules: []rsyncd.Module{},
				}
			} else {
				return nil, cfgErr
			}
		} else {
			osenv.Logf("config file %s loaded", cfgfn)
		}
	}

	if os.IsNotExist(cfgErr) {
		if opts.OcDaemon.Listen == "" &&
			opts.OcDaemon.AnonSSHListen == "" {
			return nil, fmt.Errorf("neither -ocr.listen nor -ocr.anonssh_listen specified, and config file not found: %v", cfgErr)
		}
		// If no config file was found, and the user did not specify a
		// -ocr.modulemap flag, use a default value to force the user to
		// configure a module map.
		if opts.OcDaemon.ModuleMap == "" {
			opts.OcDaemon.ModuleMap = "nonex=/nonexistant/path"
		}
	} else {
		if len(cfg.Listeners) == 0 ||
			(cfg.Listeners[0].Rsyncd == "" &&
				cfg.Listeners[0].AnonSSH == "" &&
				cfg.Listeners[0].AuthorizedSSH.Address == "") {
			return nil, fmt.Errorf("no rsyncd listeners configured, add a [[listener]] to %s", cfgfn)
		}
	}
	// TODO: loosen this restriction, create multiple listeners

	if len(cfg.Listeners) != 1 ||
		(cfg.Listeners[0].Rsyncd == "" &&
			cfg.Listeners[0].AnonSSH == "" &&
			cfg.Listeners[0].AuthorizedSSH.Address == "") {
		return nil, fmt.Errorf("not precisely 1 rsyncd listener specified")
	}

	var sshListener *anonssh.Listener
	listenAddr := cfg.Listeners[0].Rsyncd
	if listenAddr == "" {
		listenAddr = cfg.Listeners[0].AnonSSH
		if listenAddr == "" {
			listenAddr = cfg.Listeners[0].AuthorizedSSH.Address
			var err error
			sshListener, err = anonssh.ListenerFromConfig(osenv, cfg.Listeners[0])
			if err != nil {
				return nil, err
			}
		} else {
			var err error
			sshListener, err = anonssh.ListenerFromConfig(osenv, cfg.Listeners[0])
			if err != nil {
				return nil, err
			}
		}
	}

	if moduleMap := opts.OcDaemon.ModuleMap; moduleMap != "" {
		parts := strings.Split(moduleMap, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed -ocr.modulemap parameter %q, expected <modulename>=<path>", moduleMap)
		}
		module := rsyncd.Module{
			Name: parts[0],
			Path: parts[1],
		}
		cfg.Modules = append(cfg.Modules, module)
	}
	if cfg.DontNamespace {
		if cfg.Listeners[0].Rsyncd != "" ||
			cfg.Listeners[0].AnonSSH != "" {
			return nil, fmt.Errorf("dont_namespace must be used with authorized_ssh listeners only")
		}
		version(osenv)
		osenv.Logf("environment: not namespace due to dont_namespace option")
	} else {
		if err := namespace(osenv, cfg.Modules, listenAddr); err == errIsParent {
			return nil, nil
		} else if err != nil {
			return nil, fmt.Errorf("namespace: %v", err)
		}
	}
	osenv.Logf("%d rsync modules configured in total", len(cfg.Modules))
	for _, mod := range cfg.Modules {
		if !cfg.DontNamespace && !mod.Writable {
			if err := canUnexpectedlyWriteTo(mod.Path); err != nil {
				return nil, err
			}
		}

		osenv.Logf("rsync module %q with path %s configured", mod.Name, mod.Path)
	}

	sessionMetrics := metrics.NewSessionCollector(prometheus.Labels{"pid": fmt.Sprint(os.Getpid())})
	if monitoringListen := opts.OcDaemon.MonitoringListen; monitoringListen != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(sessionMetrics)
		http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			osenv.Logf("HTTP server for monitoring listening on http://%s/debug/pprof and /metrics", monitoringListen)
			if err := http.ListenAndServe(monitoringListen, nil); err != nil {
				osenv.Logf("-monitoring_listen: %v", err)
			}
		}()
	}

	rsyncdOpts := []rsyncd.Option{
		rsyncd.WithStderr(osenv.Stderr),
		rsyncd.WithMetrics(sessionMetrics),
	}
	if osenv.DontRestrict {
		rsyncdOpts = append(rsyncdOpts, rsyncd.DontRestrict())
	}
	srv, err := rsyncd.NewServer(cfg.Modules, rsyncdOpts...)
	if err != nil {
		return nil, err
	}
	var ln net.Listener
	listeners, err := systemdListeners()
	if err != nil {
		return nil, err
	}
	if len(listeners) > 0 {
		ln = listeners[0]
	} else {
		osenv.Logf("not using systemd socket activation, creating listener")
		ln, err = net.Listen("tcp", listenAddr)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Listeners[0].AuthorizedSSH.Address != "" {
		if cfg.Listeners[0].AuthorizedSSH.AuthorizedKeys == "" {
			return nil, fmt.Errorf("misconfiguration: authorized_keys must not be empty when using an authorized_ssh listener")
		}
		osenv.Logf("rsync daemon listening (authorized SSH) on %s", ln.Addr())
		return nil, anonssh.Serve(ctx, osenv, ln, sshListener, cfg, func(args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
			osenv := &rsyncos.Env{
				Stdin:  stdin,
				Stdout: stdout,
				Stderr: stderr,
				// This process is already restricted since to the
				// rsyncd.NewServer call above. Do not add more rulesets to stay
				// under the limit of policy layers per process.
				DontRestrict: true,
			}
			_, err := Main(ctx, osenv, args, cfg)
			return err
		})
	}

	if cfg.Listeners[0].AnonSSH != "" {
		osenv.Logf("rsync daemon listening (anon SSH) on %s", ln.Addr())
		return nil, anonssh.Serve(ctx, osenv, ln, sshListener, cfg, func(args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
			osenv := &rsyncos.Env{
				Stdin:  stdin,
				Stdout: stdout,
				Stderr: stderr,
				// This process is already restricted since to the
				// rsyncd.NewServer call above. Do not add more rulesets to stay
				// under the limit of policy layers per process.
				DontRestrict: true,
			}
			_, err := Main(ctx, osenv, args, cfg)
			return err
		})
	}

	osenv.Logf("rsync daemon listening on rsync://%s", ln.Addr())
	return nil, srv.Serve(ctx, ln)
}
