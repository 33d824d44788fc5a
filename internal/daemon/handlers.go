package daemon

import (
	"log"
	"net"

	"github.com/fyplabs/sessiond/internal/directive"
	"github.com/fyplabs/sessiond/internal/eventbus"
	"github.com/fyplabs/sessiond/internal/session"
	"github.com/fyplabs/sessiond/internal/wire"
)

func (d *Daemon) handleCreate(conn net.Conn, req wire.Request) {
	opts := session.CreateOptions{
		ID:        req.SessionID,
		Variant:   session.Variant(req.Variant),
		ProfileID: req.ProfileID,
		Cwd:       req.Cwd,
		ExtraArgs: req.ExtraArgs,
		Env:       req.Env,
		AuthMode:  req.AuthMode,
	}

	if p := d.profiles.Get(req.ProfileID); req.ProfileID != "" {
		if opts.Cwd == "" {
			opts.Cwd = p.Cwd
		}
		if opts.Env == nil && len(p.Vars) > 0 {
			opts.Env = p.Vars
		}
	}

	id, err := d.registry.CreateSession(opts)
	if err != nil {
		respond(conn, errResponse(err))
		return
	}

	d.wireSession(id)
	d.bus.Publish(eventbus.TopicSessionsChanged, map[string]string{"id": id, "event": "created"})
	respond(conn, wire.Response{OK: true, SessionID: id})
}

// wireSession subscribes the directive parser and transcript recorder
// to a freshly created session's output, and the event bus to its exit.
func (d *Daemon) wireSession(id string) {
	sess, err := d.registry.Session(id)
	if err != nil {
		return
	}

	sess.OnOutput(func(chunk []byte) {
		if err := d.transcript.Append(id, chunk); err != nil {
			log.Printf("daemon: transcript append for %s: %v", id, err)
		}

		d.mu.Lock()
		result := directive.Parse(id, chunk, d.carry, d.recent, directive.DefaultDedupeWindowMs)
		d.mu.Unlock()

		for _, disp := range result.Dispatches {
			if d.dispatchFn != nil {
				d.dispatchFn(id, disp)
			}
		}
		for _, qa := range result.QuestionAnswers {
			if d.answerFn != nil {
				d.answerFn(id, qa)
			}
		}
	})

	sess.OnExit(func(session.Status) {
		d.bus.Publish(eventbus.TopicSessionsChanged, map[string]string{"id": id, "event": "exited"})
	})
}

func (d *Daemon) handleList(conn net.Conn) {
	ids := d.registry.List()
	infos := make([]wire.SessionInfo, 0, len(ids))
	for _, id := range ids {
		if info, ok := d.describe(id); ok {
			infos = append(infos, info)
		}
	}
	respond(conn, wire.Response{OK: true, Sessions: infos})
}

func (d *Daemon) handleStatus(conn net.Conn, req wire.Request) {
	info, ok := d.describe(req.SessionID)
	if !ok {
		respond(conn, errResponse(session.ErrUnknownSession))
		return
	}
	respond(conn, wire.Response{OK: true, Status: &info})
}

func (d *Daemon) describe(id string) (wire.SessionInfo, bool) {
	sess, err := d.registry.Session(id)
	if err != nil {
		return wire.SessionInfo{}, false
	}
	st := sess.GetStatus()
	return wire.SessionInfo{
		ID:        sess.ID(),
		Variant:   string(sess.Variant()),
		ProfileID: sess.ProfileID(),
		Running:   st.Running,
		PID:       st.PID,
		ExitCode:  st.ExitCode,
		Signal:    st.Signal,
	}, true
}

func (d *Daemon) handleWrite(conn net.Conn, req wire.Request) {
	if err := d.registry.Write(req.SessionID, req.Data); err != nil {
		respond(conn, errResponse(err))
		return
	}
	respond(conn, wire.Response{OK: true})
}

func (d *Daemon) handleResize(conn net.Conn, req wire.Request) {
	if err := d.registry.Resize(req.SessionID, uint16(req.Cols), uint16(req.Rows)); err != nil {
		respond(conn, errResponse(err))
		return
	}
	respond(conn, wire.Response{OK: true})
}

func (d *Daemon) handleInterrupt(conn net.Conn, req wire.Request) {
	if err := d.registry.Interrupt(req.SessionID, req.SignalOnly); err != nil {
		respond(conn, errResponse(err))
		return
	}
	respond(conn, wire.Response{OK: true})
}

func (d *Daemon) handleStop(conn net.Conn, req wire.Request) {
	if err := d.registry.Stop(req.SessionID); err != nil {
		respond(conn, errResponse(err))
		return
	}
	respond(conn, wire.Response{OK: true})
}

func (d *Daemon) handleKill(conn net.Conn, req wire.Request) {
	if err := d.registry.Kill(req.SessionID); err != nil {
		respond(conn, errResponse(err))
		return
	}
	respond(conn, wire.Response{OK: true})
}

func (d *Daemon) handleClose(conn net.Conn, req wire.Request) {
	res := d.registry.Close(req.SessionID, req.Force, req.GraceMs)
	d.bus.Publish(eventbus.TopicSessionsChanged, map[string]string{"id": req.SessionID, "event": "closed"})
	respond(conn, wire.Response{OK: true, Existed: res.Existed, WasRunning: res.WasRunning})
}

func (d *Daemon) handleForget(conn net.Conn, req wire.Request) {
	d.registry.Forget(req.SessionID)
	respond(conn, wire.Response{OK: true})
}
