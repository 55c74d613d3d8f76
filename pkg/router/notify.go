package router

import (
	"time"

	"github.com/planethub/planethub/internal/logger"
	"github.com/planethub/planethub/internal/protocol/resp"
)

// Notifier propagates directory invalidations after a save so the file
// service re-reads state written by the child.
type Notifier interface {
	// ForgetDirectory must never fail observably; implementations log
	// and swallow errors.
	ForgetDirectory(path string)
}

// FileNotifier sends FORGET commands to the file service. Each notification
// dials a fresh connection; the multiplexer and the file service have
// independent lifetimes, so holding a connection open buys nothing.
type FileNotifier struct {
	addr    string
	timeout time.Duration
}

// NewFileNotifier creates a notifier for the file service at addr.
func NewFileNotifier(addr string) *FileNotifier {
	return &FileNotifier{addr: addr, timeout: 5 * time.Second}
}

// ForgetDirectory tells the file service to drop its cache for path.
func (n *FileNotifier) ForgetDirectory(path string) {
	client, err := resp.Dial(n.addr, n.timeout)
	if err != nil {
		logger.Warn("File service unreachable for forget", "address", n.addr, "error", err)
		return
	}
	defer func() { _ = client.Close() }()

	if _, err := client.Do("FORGET", path); err != nil {
		logger.Warn("Forget notification failed", "path", path, "error", err)
	}
}
