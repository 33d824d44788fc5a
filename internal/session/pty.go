package session

import (
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// initialCols/initialRows is the window every PTY child starts with;
// resize() may change it afterward.
const (
	initialCols = 100
	initialRows = 30
)

// ptyChild owns one OS process attached to a PTY master. It never
// reaches back into the owning Session (no cyclic structures).
type ptyChild struct {
	cmd *exec.Cmd
	ptm *os.File

	mu     sync.Mutex
	closed bool
}

// spawnPTYChild starts cmd attached to a freshly allocated PTY master at
// the fixed initial dimensions.
func spawnPTYChild(cmdPath string, args []string, cwd string, env []string) (*ptyChild, error) {
	cmd := exec.Command(cmdPath, args...)
	cmd.Dir = cwd
	cmd.Env = env

	ptm, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: initialCols, Rows: initialRows})
	if err != nil {
		return nil, err
	}
	return &ptyChild{cmd: cmd, ptm: ptm}, nil
}

// write passes bytes through to the PTY master. Transport-level errors
// that occur while the descriptor is tearing down (EBADF/EIO/ECONNRESET)
// are non-fatal and are swallowed by the caller (writer.go), not here —
// this method routes them through the write-error noise filter so the
// benign teardown races never reach the process logger, then reports
// them to the caller as usual.
func (c *ptyChild) write(p []byte) (int, error) {
	c.mu.Lock()
	ptm := c.ptm
	c.mu.Unlock()
	if ptm == nil {
		reportWriteError(os.ErrClosed)
		return 0, os.ErrClosed
	}
	n, err := ptm.Write(p)
	if err != nil {
		reportWriteError(err)
	}
	return n, err
}

// reportWriteError logs a PTY write failure through LogWriteError,
// translating the underlying errno (if any) into the transport code the
// noise filter matches on.
func reportWriteError(err error) {
	LogWriteError(noiseHead, writeErrorCode(err))
}

// writeErrorCode maps err to the transport code signature used by the
// write-error noise filter: "EBADF"/"EIO"/"ECONNRESET" when recognized,
// or the error's own string otherwise so unrecognized failures still log.
func writeErrorCode(err error) string {
	switch {
	case errors.Is(err, syscall.EBADF):
		return "EBADF"
	case errors.Is(err, syscall.EIO):
		return "EIO"
	case errors.Is(err, syscall.ECONNRESET):
		return "ECONNRESET"
	case errors.Is(err, os.ErrClosed):
		return "EBADF"
	default:
		return err.Error()
	}
}

// resize passes new dimensions through to the PTY master.
func (c *ptyChild) resize(cols, rows uint16) error {
	c.mu.Lock()
	ptm := c.ptm
	c.mu.Unlock()
	if ptm == nil {
		return os.ErrClosed
	}
	return pty.Setsize(ptm, &pty.Winsize{Cols: cols, Rows: rows})
}

// killSignal delivers sig to the child process. Errors are the caller's
// to swallow (lifecycle.go does so uniformly for interrupt/kill).
func (c *ptyChild) killSignal(sig syscall.Signal) error {
	if c.cmd == nil || c.cmd.Process == nil {
		return os.ErrProcessDone
	}
	return c.cmd.Process.Signal(sig)
}

// pid returns the child's OS process id, or 0 if it never started.
func (c *ptyChild) pid() int {
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// read is a thin pass-through used by the read loop in session.go; kept
// as a method so the read loop does not need to reach into the os.File
// directly.
func (c *ptyChild) read(buf []byte) (int, error) {
	c.mu.Lock()
	ptm := c.ptm
	c.mu.Unlock()
	if ptm == nil {
		return 0, os.ErrClosed
	}
	return ptm.Read(buf)
}

// closeMaster closes the PTY master exactly once.
func (c *ptyChild) closeMaster() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.ptm == nil {
		return
	}
	c.closed = true
	c.ptm.Close()
}

// wait blocks until the child process has fully exited and returns its
// termination details.
func (c *ptyChild) wait() (exitCode *int, sig *int) {
	err := c.cmd.Wait()
	if err == nil {
		code := c.cmd.ProcessState.ExitCode()
		return &code, nil
	}
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				s := int(status.Signal())
				return nil, &s
			}
			code := status.ExitStatus()
			return &code, nil
		}
		code := exitErr.ExitCode()
		return &code, nil
	}
	// Wait failed for a reason other than a non-zero exit (e.g. already
	// reaped); report a generic non-zero code rather than propagating.
	code := -1
	return &code, nil
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}
