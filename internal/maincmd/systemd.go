package maincmd

import (
	"fmt"
	"net"
	"os"
	"strconv"
)

const firstSystemdFD = 3

// systemdListeners returns the listeners passed via systemd socket
// activation (the LISTEN_FDS/LISTEN_PID protocol), or nil if this
// process was not socket-activated.
func systemdListeners() ([]net.Listener, error) {
	pidStr := os.Getenv("LISTEN_PID")
	if pidStr == "" {
		return nil, nil
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid LISTEN_PID %q: %v", pidStr, err)
	}
	if pid != os.Getpid() {
		// Socket activation was meant for a different process (e.g. a
		// parent that already exec'd past us).
		return nil, nil
	}

	nfds, err := strconv.Atoi(os.Getenv("LISTEN_FDS"))
	if err != nil || nfds <= 0 {
		return nil, nil
	}

	listeners := make([]net.Listener, 0, nfds)
	for i := 0; i < nfds; i++ {
		fd := uintptr(firstSystemdFD + i)
		f := os.NewFile(fd, fmt.Sprintf("systemd-socket-%d", i))
		ln, err := net.FileListener(f)
		if err != nil {
			return nil, fmt.Errorf("systemd socket %d: %v", i, err)
		}
		listeners = append(listeners, ln)
	}
	return listeners, nil
}
