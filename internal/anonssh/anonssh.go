// Package anonssh wraps daemon connections in an SSH transport, either
// unauthenticated ("anonymous SSH", purely for encryption in transit) or
// authenticated against a set of authorized public keys. Once the SSH
// handshake completes, an "exec" request's command line is handed to a
// caller-supplied handler exactly like an rsync client invoked over a
// plain remote shell would be.
package anonssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/google/shlex"
	"golang.org/x/crypto/ssh"

	"github.com/oferchen/ocrsync/internal/rsyncdconfig"
	"github.com/oferchen/ocrsync/internal/rsyncos"
)

// Listener holds the SSH server configuration (host key, client
// authentication policy) for one configured listener.
type Listener struct {
	config *ssh.ServerConfig
}

// ListenerFromConfig builds a Listener for lcfg. Exactly one of
// lcfg.AnonSSH or lcfg.AuthorizedSSH.Address is expected to be set by
// the caller; AuthorizedSSH takes precedence if both are (the zero
// value of AnonSSH is the common case for that listener kind).
func ListenerFromConfig(osenv *rsyncos.Env, lcfg rsyncdconfig.Listener) (*Listener, error) {
	signer, err := newHostKey()
	if err != nil {
		return nil, fmt.Errorf("generating SSH host key: %v", err)
	}

	config := &ssh.ServerConfig{}
	if lcfg.AuthorizedSSH.Address != "" {
		keys, err := loadAuthorizedKeys(lcfg.AuthorizedSSH.AuthorizedKeys)
		if err != nil {
			return nil, err
		}
		config.PublicKeyCallback = func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if !keys[string(key.Marshal())] {
				return nil, fmt.Errorf("unknown public key for user %q", conn.User())
			}
			return &ssh.Permissions{}, nil
		}
		osenv.Logf("anonssh: %d authorized key(s) loaded from %s", len(keys), lcfg.AuthorizedSSH.AuthorizedKeys)
	} else {
		config.NoClientAuth = true
		osenv.Logf("anonssh: no client authentication configured (anonymous SSH transport)")
	}
	config.AddHostKey(signer)

	return &Listener{config: config}, nil
}

func newHostKey() (ssh.Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return ssh.NewSignerFromKey(priv)
}

func loadAuthorizedKeys(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading authorized_keys: %v", err)
	}
	keys := make(map[string]bool)
	for len(data) > 0 {
		pub, _, _, rest, err := ssh.ParseAuthorizedKey(data)
		if err != nil {
			break
		}
		keys[string(pub.Marshal())] = true
		data = rest
	}
	return keys, nil
}

// Handler is invoked for each "exec" request received over an
// established SSH session, with the command line split the same way a
// shell would split it.
type Handler func(args []string, stdin io.Reader, stdout, stderr io.Writer) error

// Serve accepts connections on ln until ctx is canceled, performing the
// SSH handshake described by sshListener on each one and dispatching
// exec requests to handler.
func Serve(ctx context.Context, osenv *rsyncos.Env, ln net.Listener, sshListener *Listener, cfg *rsyncdconfig.Config, handler Handler) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go func() {
			defer conn.Close()
			if err := handleConn(conn, sshListener, handler); err != nil {
				osenv.Logf("anonssh: %v", err)
			}
		}()
	}
}

func handleConn(conn net.Conn, l *Listener, handler Handler) error {
	sshConn, chans, reqs, err := ssh.NewServerConn(conn, l.config)
	if err != nil {
		return fmt.Errorf("SSH handshake: %v", err)
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "only session channels are supported")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			return fmt.Errorf("accepting channel: %v", err)
		}
		go handleSession(channel, requests, handler)
	}
	return nil
}

func handleSession(channel ssh.Channel, requests <-chan *ssh.Request, handler Handler) {
	defer channel.Close()

	for req := range requests {
		if req.Type != "exec" {
			if req.WantReply {
				req.Reply(false, nil)
			}
			continue
		}

		var payload struct{ Command string }
		ssh.Unmarshal(req.Payload, &payload)
		req.Reply(true, nil)

		var exitStatus uint32
		args, err := shlex.Split(payload.Command)
		if err != nil {
			fmt.Fprintf(channel.Stderr(), "parsing command: %v\n", err)
			exitStatus = 1
		} else if err := handler(args, channel, channel, channel.Stderr()); err != nil {
			fmt.Fprintf(channel.Stderr(), "%v\n", err)
			exitStatus = 1
		}

		channel.SendRequest("exit-status", false, ssh.Marshal(&struct{ Status uint32 }{exitStatus}))
		return
	}
}
