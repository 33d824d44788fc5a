package daemon

import (
	"io"
	"log"
	"net"
	"strconv"
	"sync"

	"github.com/fyplabs/sessiond/internal/session"
	"github.com/fyplabs/sessiond/internal/wire"
)

// handleAttach upgrades conn into streaming mode after a successful
// handshake: the server writes raw PTY output with no framing, and the
// client sends length-prefixed control frames (data/resize/interrupt/detach).
func (d *Daemon) handleAttach(conn net.Conn, req wire.Request) {
	sess, err := d.registry.Session(req.SessionID)
	if err != nil {
		respond(conn, errResponse(err))
		return
	}

	if st := sess.GetStatus(); !st.Running {
		respond(conn, wire.Response{OK: false, Error: "session is not running"})
		return
	}

	respond(conn, wire.Response{OK: true})

	done := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(done) }) }

	cancelOutput := sess.OnOutput(func(chunk []byte) {
		if _, err := conn.Write(chunk); err != nil {
			log.Printf("daemon: attach %s write: %v", req.SessionID, err)
		}
	})
	cancelExit := sess.OnExit(func(session.Status) { finish() })
	defer cancelOutput()
	defer cancelExit()

	go func() {
		defer finish()

		for {
			frameType, payload, err := wire.ReadFrame(conn)
			if err != nil {
				if err != io.EOF {
					log.Printf("daemon: attach %s read: %v", req.SessionID, err)
				}
				return
			}

			switch frameType {
			case wire.AttachFrameData:
				sess.Write(string(payload))

			case wire.AttachFrameResize:
				if cols, rows, err := wire.DecodeResize(payload); err == nil {
					sess.Resize(uint16(cols), uint16(rows))
				}

			case wire.AttachFrameInterrupt:
				signalOnly := len(payload) == 1 && payload[0] != 0
				sess.Interrupt(signalOnly)

			case wire.AttachFrameDetach:
				return

			default:
				log.Printf("daemon: attach %s: unknown frame type %s", req.SessionID, strconv.Itoa(int(frameType)))
			}
		}
	}()

	<-done
	conn.Close()
}
