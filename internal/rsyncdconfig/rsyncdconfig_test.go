package rsyncdconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/oferchen/ocrsync/rsyncd"
)

const classicConf = `# global settings
motd file = /etc/rsyncd.motd
pid file = /run/rsyncd.pid
log file = /var/log/rsyncd.log
port = 874
address = 127.0.0.1
socket options = SO_KEEPALIVE

[pub]
path = /srv/pub
comment = public files
hosts allow = 10.0.0.0/8 192.168.1.5
hosts deny = all

[incoming]
path = /srv/incoming
read only = no
list = no
auth users = alice, bob
secrets file = /etc/rsyncd.secrets
dont compress = *.gz *.zst
max connections = 4
timeout = 600
transfer logging = yes
`

func TestParseRsyncdConf(t *testing.T) {
	rc, err := ParseRsyncdConf([]byte(classicConf))
	if err != nil {
		t.Fatalf("ParseRsyncdConf: %v", err)
	}

	wantGlobal := Global{
		MotdFile:      "/etc/rsyncd.motd",
		PidFile:       "/run/rsyncd.pid",
		LogFile:       "/var/log/rsyncd.log",
		Port:          874,
		Address:       "127.0.0.1",
		SocketOptions: "SO_KEEPALIVE",
	}
	if diff := cmp.Diff(wantGlobal, rc.Global); diff != "" {
		t.Errorf("Global: diff (-want +got):\n%s", diff)
	}

	wantModules := []ConfModule{
		{
			Name:       "pub",
			Path:       "/srv/pub",
			Comment:    "public files",
			ReadOnly:   true,
			List:       true,
			HostsAllow: []string{"10.0.0.0/8", "192.168.1.5"},
			HostsDeny:  []string{"all"},
		},
		{
			Name:            "incoming",
			Path:            "/srv/incoming",
			ReadOnly:        false,
			List:            false,
			AuthUsers:       []string{"alice", "bob"},
			SecretsFile:     "/etc/rsyncd.secrets",
			DontCompress:    []string{"*.gz", "*.zst"},
			MaxConnections:  4,
			Timeout:         600,
			TransferLogging: true,
		},
	}
	if diff := cmp.Diff(wantModules, rc.Modules); diff != "" {
		t.Errorf("Modules: diff (-want +got):\n%s", diff)
	}
}

func TestRsyncdConfToConfig(t *testing.T) {
	rc, err := ParseRsyncdConf([]byte(classicConf))
	if err != nil {
		t.Fatalf("ParseRsyncdConf: %v", err)
	}
	cfg, err := rc.ToConfig()
	if err != nil {
		t.Fatalf("ToConfig: %v", err)
	}

	if got, want := len(cfg.Listeners), 1; got != want {
		t.Fatalf("len(Listeners) = %d, want %d", got, want)
	}
	if got, want := cfg.Listeners[0].Rsyncd, "127.0.0.1:874"; got != want {
		t.Errorf("Listeners[0].Rsyncd = %q, want %q", got, want)
	}

	wantModules := []rsyncd.Module{
		{
			Name: "pub",
			Path: "/srv/pub",
			ACL: []string{
				"allow 10.0.0.0/8",
				"allow 192.168.1.5/32",
				"deny all",
			},
			Writable: false,
		},
		{
			Name:     "incoming",
			Path:     "/srv/incoming",
			Writable: true,
		},
	}
	if diff := cmp.Diff(wantModules, cfg.Modules); diff != "" {
		t.Errorf("Modules: diff (-want +got):\n%s", diff)
	}
}

func TestParseRsyncdConfErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		in   string
	}{
		{"unknown global key", "bogus = 1\n"},
		{"unknown module key", "[m]\npath = /srv\nbogus = 1\n"},
		{"unterminated header", "[m\n"},
		{"missing equals", "[m]\npath /srv\n"},
		{"bad port", "port = many\n"},
	} {
		if _, err := ParseRsyncdConf([]byte(tc.in)); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestFromFileClassicConf(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "rsyncd.conf")
	if err := os.WriteFile(fn, []byte("[data]\npath = /srv/data\nread only = no\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := FromFile(fn)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if got, want := len(cfg.Modules), 1; got != want {
		t.Fatalf("len(Modules) = %d, want %d", got, want)
	}
	if !cfg.Modules[0].Writable {
		t.Error("module should be writable")
	}
	if got, want := cfg.Listeners[0].Rsyncd, ":873"; got != want {
		t.Errorf("Listeners[0].Rsyncd = %q, want %q", got, want)
	}
}
