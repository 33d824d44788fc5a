// Package daemon implements the sessiond background supervisor.
//
// The daemon listens on a Unix domain socket and handles requests from
// sessionctl clients. Each request is a single newline-terminated JSON
// object; the daemon writes a single newline-terminated JSON response
// and then closes the connection — except for attach requests, which
// enter a bidirectional streaming mode (see internal/wire for the wire
// format).
package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/fyplabs/sessiond/internal/directive"
	"github.com/fyplabs/sessiond/internal/eventbus"
	"github.com/fyplabs/sessiond/internal/health"
	"github.com/fyplabs/sessiond/internal/profile"
	"github.com/fyplabs/sessiond/internal/session"
	"github.com/fyplabs/sessiond/internal/transcript"
	"github.com/fyplabs/sessiond/internal/wire"
)

// Daemon is the central supervisor. It owns the session registry and
// the collaborators that observe and route its output: the directive
// parser, the transcript store, and the event bus.
type Daemon struct {
	registry   *session.Registry
	profiles   *profile.Store
	transcript *transcript.FileStore
	bus        *eventbus.Hub
	health     *health.Reporter

	mu        sync.Mutex
	carry     directive.CarryStore
	recent    directive.RecentStore
	dispatchFn func(sessionID string, d directive.Dispatch)
	answerFn   func(sessionID string, qa directive.QuestionAnswer)
}

// Config bundles everything New needs to assemble a Daemon.
type Config struct {
	Tools         session.Tools
	SupervisorCwd string
	DefaultSubmitA bool
	Profiles      *profile.Store
	TranscriptDir string
	Bus           *eventbus.Hub
	HealthInterval time.Duration
	OnDispatch    func(sessionID string, d directive.Dispatch)
	OnAnswer      func(sessionID string, qa directive.QuestionAnswer)
}

// New assembles a Daemon from cfg, wiring a fresh session.Registry and
// transcript.FileStore.
func New(cfg Config) (*Daemon, error) {
	ts, err := transcript.NewFileStore(cfg.TranscriptDir)
	if err != nil {
		return nil, fmt.Errorf("daemon: init transcript store: %w", err)
	}

	reg := session.NewRegistry(cfg.Tools, cfg.SupervisorCwd, cfg.DefaultSubmitA)
	bus := cfg.Bus
	if bus == nil {
		bus = eventbus.NewHub()
	}

	d := &Daemon{
		registry:   reg,
		profiles:   cfg.Profiles,
		transcript: ts,
		bus:        bus,
		carry:      directive.CarryStore{},
		recent:     directive.RecentStore{},
		dispatchFn: cfg.OnDispatch,
		answerFn:   cfg.OnAnswer,
	}
	interval := cfg.HealthInterval
	if interval <= 0 {
		interval = health.DefaultInterval
	}
	d.health = health.NewReporter(bus, func() int { return len(reg.List()) }, interval)
	return d, nil
}

// Registry exposes the underlying session registry for callers (e.g.
// this package's in-process tests) that want to bypass the socket.
func (d *Daemon) Registry() *session.Registry { return d.registry }

// Bus exposes the event hub so main can mount it on an HTTP mux.
func (d *Daemon) Bus() *eventbus.Hub { return d.bus }

// RunHealth blocks, publishing periodic supervisor.health snapshots
// until ctx is cancelled. Callers typically run this in its own
// goroutine alongside Run.
func (d *Daemon) RunHealth(ctx context.Context) {
	d.health.Run(ctx)
}

// ReloadProfiles re-reads the profile store's backing profiles.yaml and
// publishes workspaces.changed once it has swapped in. Intended to be
// driven by the process's SIGHUP handler.
func (d *Daemon) ReloadProfiles() error {
	if err := d.profiles.Reload(); err != nil {
		return err
	}
	d.bus.Publish(eventbus.TopicWorkspacesChanged, map[string]string{"event": "reloaded"})
	return nil
}

// Run starts the Unix socket listener and blocks until it is closed.
func (d *Daemon) Run(socketPath string) error {
	os.Remove(socketPath)

	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer l.Close()

	log.Printf("sessiond listening on %s", socketPath)

	for {
		conn, err := l.Accept()
		if err != nil {
			return nil
		}
		go d.handleConn(conn)
	}
}

// MountEventBus attaches the event hub's WebSocket endpoint to mux, for
// callers that also expose an HTTP control surface alongside the Unix
// socket.
func (d *Daemon) MountEventBus(mux *http.ServeMux, pattern string) {
	mux.Handle(pattern, d.bus)
}

// Shutdown kills every session and releases the transcript store.
func (d *Daemon) Shutdown() {
	d.registry.Dispose()
	d.transcript.Close()
}

func (d *Daemon) handleConn(conn net.Conn) {
	defer conn.Close()

	var req wire.Request
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if !scanner.Scan() {
		return
	}
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		respond(conn, wire.Response{OK: false, Error: "bad request: " + err.Error()})
		return
	}

	switch req.Type {
	case wire.ReqPing:
		respond(conn, wire.Response{OK: true})
	case wire.ReqCreate:
		d.handleCreate(conn, req)
	case wire.ReqList:
		d.handleList(conn)
	case wire.ReqStatus:
		d.handleStatus(conn, req)
	case wire.ReqAttach:
		d.handleAttach(conn, req)
	case wire.ReqWrite:
		d.handleWrite(conn, req)
	case wire.ReqResize:
		d.handleResize(conn, req)
	case wire.ReqInterrupt:
		d.handleInterrupt(conn, req)
	case wire.ReqStop:
		d.handleStop(conn, req)
	case wire.ReqKill:
		d.handleKill(conn, req)
	case wire.ReqClose:
		d.handleClose(conn, req)
	case wire.ReqForget:
		d.handleForget(conn, req)
	default:
		respond(conn, wire.Response{OK: false, Error: "unknown request type: " + req.Type})
	}
}

func respond(conn net.Conn, r wire.Response) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	data = append(data, '\n')
	conn.Write(data)
}

func errResponse(err error) wire.Response {
	return wire.Response{OK: false, Error: err.Error()}
}
