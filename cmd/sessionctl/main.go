// sessionctl – the CLI client for the sessiond daemon.
//
// Usage:
//
//	sessionctl create <variant> [--profile <id>] [--cwd <dir>]
//	sessionctl list
//	sessionctl status <session-id>
//	sessionctl attach <session-id>    – attach your terminal to a session
//	sessionctl write <session-id> <text>
//	sessionctl interrupt <session-id>
//	sessionctl stop <session-id>
//	sessionctl kill <session-id>
//	sessionctl close <session-id> [--force] [--grace-ms <n>]
//
// Detach from an attached session with Ctrl-] (0x1D).
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/term"

	"github.com/fyplabs/sessiond/internal/wire"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "create":
		cmdCreate()
	case "list":
		cmdList()
	case "status":
		cmdStatus()
	case "attach":
		cmdAttach()
	case "write":
		cmdWrite()
	case "interrupt":
		cmdInterrupt()
	case "stop":
		cmdStop()
	case "kill":
		cmdKill()
	case "close":
		cmdClose()
	default:
		fmt.Fprintf(os.Stderr, "sessionctl: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `sessionctl - control the sessiond supervisor

  create <variant> [--profile <id>] [--cwd <dir>]  Create a session
  list                                              List all sessions
  status <id>                                       Print a session's status
  attach <id>                                       Attach your terminal
  write <id> <text>                                 Write raw text to a session
  interrupt <id> [--signal-only]                    Send ^C / SIGINT
  stop <id>                                         Equivalent to interrupt
  kill <id>                                         SIGKILL the child
  close <id> [--force] [--grace-ms <n>]              Run the shutdown sequence`)
}

func daemonSocket() string {
	if env := os.Getenv("SESSIOND_SOCKET"); env != "" {
		return env
	}
	root := os.Getenv("SESSIOND_ROOT")
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "sessionctl: cannot determine home directory: %v\n", err)
			os.Exit(1)
		}
		root = filepath.Join(home, ".sessiond")
	}
	return filepath.Join(root, "sessiond.sock")
}

func dial() net.Conn {
	conn, err := net.Dial("unix", daemonSocket())
	if err != nil {
		fmt.Fprintf(os.Stderr, "sessionctl: cannot connect to daemon: %v\n", err)
		os.Exit(1)
	}
	return conn
}

func writeRequest(conn net.Conn, req wire.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = conn.Write(data)
	return err
}

func readResponse(conn net.Conn) (wire.Response, error) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return wire.Response{}, err
		}
		return wire.Response{}, fmt.Errorf("daemon closed connection without a response")
	}
	var resp wire.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return wire.Response{}, err
	}
	return resp, nil
}

func roundTrip(req wire.Request) wire.Response {
	conn := dial()
	defer conn.Close()

	if err := writeRequest(conn, req); err != nil {
		fmt.Fprintf(os.Stderr, "sessionctl: %v\n", err)
		os.Exit(1)
	}
	resp, err := readResponse(conn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sessionctl: %v\n", err)
		os.Exit(1)
	}
	return resp
}

func cmdCreate() {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	profileID := fs.String("profile", "", "profile id to apply")
	cwd := fs.String("cwd", "", "working directory override")
	fs.Parse(os.Args[3:])
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: sessionctl create <variant> [--profile <id>] [--cwd <dir>]")
		os.Exit(1)
	}
	variant := os.Args[2]

	resp := roundTrip(wire.Request{Type: wire.ReqCreate, Variant: variant, ProfileID: *profileID, Cwd: *cwd})
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "sessionctl: %s\n", resp.Error)
		os.Exit(1)
	}
	fmt.Println(resp.SessionID)
}

func cmdList() {
	resp := roundTrip(wire.Request{Type: wire.ReqList})
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "sessionctl: %s\n", resp.Error)
		os.Exit(1)
	}
	for _, s := range resp.Sessions {
		fmt.Printf("%s\tvariant=%s\trunning=%v\tpid=%d\n", s.ID, s.Variant, s.Running, s.PID)
	}
}

func requireSessionID() string {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: sessionctl <cmd> <session-id>")
		os.Exit(1)
	}
	return os.Args[2]
}

func cmdStatus() {
	id := requireSessionID()
	resp := roundTrip(wire.Request{Type: wire.ReqStatus, SessionID: id})
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "sessionctl: %s\n", resp.Error)
		os.Exit(1)
	}
	fmt.Printf("running=%v pid=%d\n", resp.Status.Running, resp.Status.PID)
}

func cmdWrite() {
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "usage: sessionctl write <session-id> <text>")
		os.Exit(1)
	}
	resp := roundTrip(wire.Request{Type: wire.ReqWrite, SessionID: os.Args[2], Data: os.Args[3]})
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "sessionctl: %s\n", resp.Error)
		os.Exit(1)
	}
}

func cmdInterrupt() {
	fs := flag.NewFlagSet("interrupt", flag.ExitOnError)
	signalOnly := fs.Bool("signal-only", false, "send SIGINT immediately instead of ^C then SIGINT")
	id := requireSessionID()
	fs.Parse(os.Args[3:])

	resp := roundTrip(wire.Request{Type: wire.ReqInterrupt, SessionID: id, SignalOnly: *signalOnly})
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "sessionctl: %s\n", resp.Error)
		os.Exit(1)
	}
}

func cmdStop() {
	id := requireSessionID()
	resp := roundTrip(wire.Request{Type: wire.ReqStop, SessionID: id})
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "sessionctl: %s\n", resp.Error)
		os.Exit(1)
	}
}

func cmdKill() {
	id := requireSessionID()
	resp := roundTrip(wire.Request{Type: wire.ReqKill, SessionID: id})
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "sessionctl: %s\n", resp.Error)
		os.Exit(1)
	}
}

func cmdClose() {
	fs := flag.NewFlagSet("close", flag.ExitOnError)
	force := fs.Bool("force", false, "hard-kill if still running after the grace period")
	graceMs := fs.Int("grace-ms", 1400, "grace period before force-kill, in milliseconds")
	id := requireSessionID()
	fs.Parse(os.Args[3:])

	resp := roundTrip(wire.Request{Type: wire.ReqClose, SessionID: id, Force: *force, GraceMs: *graceMs})
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "sessionctl: %s\n", resp.Error)
		os.Exit(1)
	}
}

// cmdAttach puts the local terminal into raw mode and bridges stdin/stdout
// to the session's PTY over the attach stream. Ctrl-] (0x1D) detaches.
func cmdAttach() {
	sessionID := requireSessionID()

	conn := dial()
	// conn is intentionally not deferred-closed: the attach loop owns it.

	if err := writeRequest(conn, wire.Request{Type: wire.ReqAttach, SessionID: sessionID}); err != nil {
		fmt.Fprintf(os.Stderr, "sessionctl: %v\n", err)
		os.Exit(1)
	}
	resp, err := readResponse(conn)
	if err != nil || !resp.OK {
		msg := "attach failed"
		if err != nil {
			msg = err.Error()
		} else if resp.Error != "" {
			msg = resp.Error
		}
		fmt.Fprintf(os.Stderr, "sessionctl: %s\n", msg)
		conn.Close()
		os.Exit(1)
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sessionctl: cannot set raw mode: %v\n", err)
		conn.Close()
		os.Exit(1)
	}
	defer term.Restore(fd, oldState)

	fmt.Fprintf(os.Stdout, "\r\n[sessionctl] attached to %s  (detach: Ctrl-])\r\n", sessionID)

	done := make(chan struct{}, 2)

	go func() {
		io.Copy(os.Stdout, conn)
		done <- struct{}{}
	}()

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				detached := false
				for _, b := range buf[:n] {
					if b == 0x1D { // Ctrl-]
						wire.WriteFrame(conn, wire.AttachFrameDetach, nil)
						detached = true
						break
					}
				}
				if detached {
					done <- struct{}{}
					return
				}
				if werr := wire.WriteFrame(conn, wire.AttachFrameData, buf[:n]); werr != nil {
					done <- struct{}{}
					return
				}
			}
			if err != nil {
				done <- struct{}{}
				return
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	go func() {
		for range sigCh {
			if cols, rows, err := term.GetSize(fd); err == nil {
				wire.WriteFrame(conn, wire.AttachFrameResize, wire.EncodeResize(cols, rows))
			}
		}
	}()

	<-done
	conn.Close()
}
