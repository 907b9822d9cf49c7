// Package rsyncdconfig loads the TOML configuration file for the
// standalone rsync daemon: which listeners to open (plain rsync://,
// anonymous SSH, or authorized-keys SSH) and which modules to serve.
package rsyncdconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/oferchen/ocrsync/rsyncd"
)

// AuthorizedSSH configures an SSH listener that authenticates clients
// against a set of authorized public keys, as opposed to AnonSSH's
// no-authentication transport-only mode.
type AuthorizedSSH struct {
	Address        string `toml:"address"`
	AuthorizedKeys string `toml:"authorized_keys"`
}

// Listener configures one network endpoint the daemon listens on.
// Precisely one of Rsyncd, AnonSSH or AuthorizedSSH.Address should be
// set.
type Listener struct {
	// Rsyncd is a plain rsync:// listener, e.g. ":873".
	Rsyncd string `toml:"rsyncd"`

	// AnonSSH wraps the rsync protocol in an SSH connection that accepts
	// any client without authentication, to merely get encryption in
	// transit without requiring key management.
	AnonSSH string `toml:"anonssh"`

	AuthorizedSSH AuthorizedSSH `toml:"authorized_ssh"`
}

// Config is the top-level shape of the daemon's TOML config file.
type Config struct {
	// DontNamespace disables the re-exec-into-mount-namespace isolation
	// internal/maincmd otherwise applies before serving modules. Only
	// valid in combination with authorized_ssh listeners, which run each
	// connection as an unprivileged user already.
	DontNamespace bool `toml:"dont_namespace"`

	Listeners []Listener     `toml:"listener"`
	Modules   []rsyncd.Module `toml:"module"`
}

// defaultConfigPaths lists the locations the daemon searches for its
// config file, most specific first.
var defaultConfigPaths = []string{
	"/etc/oc-rsync.toml",
	"/perm/oc-rsync/oc-rsync.toml",
}

// FromFile reads and parses the config file at path. A ".conf" file is
// parsed as a classic rsyncd.conf; everything else as TOML. The
// returned error satisfies os.IsNotExist when path does not exist, so
// callers can fall back to defaults.
func FromFile(path string) (*Config, error) {
	if strings.HasSuffix(path, ".conf") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		rc, err := ParseRsyncdConf(data)
		if err != nil {
			return nil, err
		}
		return rc.ToConfig()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if _, err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %v", path, err)
	}
	for _, mod := range cfg.Modules {
		if mod.Name == "" {
			return nil, fmt.Errorf("%s: module with empty name", path)
		}
		if mod.Path == "" {
			return nil, fmt.Errorf("%s: module %q has empty path", path, mod.Name)
		}
	}
	return &cfg, nil
}

// FromDefaultFiles tries each of defaultConfigPaths in turn, returning
// the first one that exists (along with its path, for logging) or the
// os.IsNotExist error from the last attempt if none do.
func FromDefaultFiles() (*Config, string, error) {
	var lastErr error
	for _, path := range defaultConfigPaths {
		cfg, err := FromFile(path)
		if err == nil {
			return cfg, path, nil
		}
		if os.IsNotExist(err) {
			lastErr = err
			continue
		}
		return nil, "", err
	}
	return nil, "", lastErr
}
