package rsyncdconfig

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/oferchen/ocrsync/rsyncd"
)

// Global holds the pre-module options of a classic rsyncd.conf file.
// Only the daemon wiring consumes Port/Address; the remaining fields
// are carried for the external collaborators (MOTD printing, pid files,
// log sinks) that sit outside this module.
type Global struct {
	MotdFile      string
	PidFile       string
	LogFile       string
	Port          int
	Address       string
	SocketOptions string
}

// ConfModule is one [name] section of a classic rsyncd.conf file, with
// every recognized per-module key preserved even where this daemon only
// acts on a subset (Path, ReadOnly, hosts allow/deny).
type ConfModule struct {
	Name            string
	Path            string
	Comment         string
	ReadOnly        bool
	List            bool
	UID             string
	GID             string
	AuthUsers       []string
	SecretsFile     string
	HostsAllow      []string
	HostsDeny       []string
	DontCompress    []string
	MaxConnections  int
	Timeout         int
	TransferLogging bool
}

// RsyncdConf is the parsed form of a classic rsyncd.conf file.
type RsyncdConf struct {
	Global  Global
	Modules []ConfModule
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "true", "1":
		return true
	}
	return false
}

func splitList(v string) []string {
	f := strings.FieldsFunc(v, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ','
	})
	out := make([]string, 0, len(f))
	for _, s := range f {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseRsyncdConf parses data as a classic rsyncd.conf: an INI-like
// format with an implicit global section, [name] module headers,
// "key = value" lines, and '#'/';' comment lines. Unrecognized keys are
// an error, so a typo does not silently weaken e.g. a hosts allow list.
func ParseRsyncdConf(data []byte) (*RsyncdConf, error) {
	cfg := &RsyncdConf{}
	var cur *ConfModule

	for lineno, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || line[0] == '#' || line[0] == ';' {
			continue
		}

		if line[0] == '[' {
			end := strings.IndexByte(line, ']')
			if end < 0 {
				return nil, fmt.Errorf("rsyncd.conf line %d: unterminated section header %q", lineno+1, line)
			}
			name := strings.TrimSpace(line[1:end])
			if name == "" {
				return nil, fmt.Errorf("rsyncd.conf line %d: empty module name", lineno+1)
			}
			// read only = yes and list = yes are the classic defaults.
			cfg.Modules = append(cfg.Modules, ConfModule{Name: name, ReadOnly: true, List: true})
			cur = &cfg.Modules[len(cfg.Modules)-1]
			continue
		}

		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return nil, fmt.Errorf("rsyncd.conf line %d: expected key = value, got %q", lineno+1, line)
		}
		key := strings.ToLower(strings.TrimSpace(line[:eq]))
		value := strings.TrimSpace(line[eq+1:])

		if cur == nil {
			switch key {
			case "motd file":
				cfg.Global.MotdFile = value
			case "pid file":
				cfg.Global.PidFile = value
			case "log file":
				cfg.Global.LogFile = value
			case "port":
				n, err := strconv.Atoi(value)
				if err != nil {
					return nil, fmt.Errorf("rsyncd.conf line %d: invalid port %q", lineno+1, value)
				}
				cfg.Global.Port = n
			case "address":
				cfg.Global.Address = value
			case "socket options":
				cfg.Global.SocketOptions = value
			default:
				return nil, fmt.Errorf("rsyncd.conf line %d: unknown global option %q", lineno+1, key)
			}
			continue
		}

		switch key {
		case "path":
			cur.Path = value
		case "comment":
			cur.Comment = value
		case "read only":
			cur.ReadOnly = parseBool(value)
		case "list":
			cur.List = parseBool(value)
		case "uid":
			cur.UID = value
		case "gid":
			cur.GID = value
		case "auth users":
			cur.AuthUsers = splitList(value)
		case "secrets file":
			cur.SecretsFile = value
		case "hosts allow":
			cur.HostsAllow = splitList(value)
		case "hosts deny":
			cur.HostsDeny = splitList(value)
		case "dont compress":
			cur.DontCompress = splitList(value)
		case "max connections":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("rsyncd.conf line %d: invalid max connections %q", lineno+1, value)
			}
			cur.MaxConnections = n
		case "timeout":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("rsyncd.conf line %d: invalid timeout %q", lineno+1, value)
			}
			cur.Timeout = n
		case "transfer logging":
			cur.TransferLogging = parseBool(value)
		default:
			return nil, fmt.Errorf("rsyncd.conf line %d: unknown option %q in module %q", lineno+1, key, cur.Name)
		}
	}
	return cfg, nil
}

// aclEntry widens a bare host address to the CIDR form the server's ACL
// matcher evaluates; "all" and already-masked entries pass unchanged.
func aclEntry(action, who string) string {
	if who != "all" && !strings.Contains(who, "/") {
		if ip := net.ParseIP(who); ip != nil {
			if ip.To4() != nil {
				who += "/32"
			} else {
				who += "/128"
			}
		}
	}
	return action + " " + who
}

// ToConfig maps a parsed rsyncd.conf onto the daemon's native Config:
// one plain TCP listener from the global port/address, and one module
// per section. A hosts allow list implies denying everyone else, as in
// classic rsync.
func (rc *RsyncdConf) ToConfig() (*Config, error) {
	port := rc.Global.Port
	if port == 0 {
		port = 873
	}
	cfg := &Config{
		Listeners: []Listener{
			{Rsyncd: net.JoinHostPort(rc.Global.Address, strconv.Itoa(port))},
		},
	}
	for _, m := range rc.Modules {
		if m.Path == "" {
			return nil, fmt.Errorf("rsyncd.conf: module %q has no path", m.Name)
		}
		var acl []string
		for _, h := range m.HostsAllow {
			acl = append(acl, aclEntry("allow", h))
		}
		for _, h := range m.HostsDeny {
			acl = append(acl, aclEntry("deny", h))
		}
		if len(m.HostsAllow) > 0 && len(m.HostsDeny) == 0 {
			acl = append(acl, "deny all")
		}
		cfg.Modules = append(cfg.Modules, rsyncd.Module{
			Name:     m.Name,
			Path:     m.Path,
			ACL:      acl,
			Writable: !m.ReadOnly,
		})
	}
	return cfg, nil
}
