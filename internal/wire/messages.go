// Package wire defines the IPC message types and attach-stream framing
// used between sessionctl (client) and sessiond (daemon) over a Unix
// domain socket.
//
// Normal commands use newline-delimited JSON: client sends one Request,
// daemon sends one Response, then the connection closes.
//
// The attach command is special: after the JSON handshake the
// connection enters a streaming mode where the server sends raw PTY
// output and the client sends framed control messages (data, resize,
// interrupt, detach).
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Request type constants.
const (
	ReqPing      = "ping"
	ReqCreate    = "create"
	ReqList      = "list"
	ReqStatus    = "status"
	ReqAttach    = "attach"
	ReqWrite     = "write"
	ReqResize    = "resize"
	ReqInterrupt = "interrupt"
	ReqStop      = "stop"
	ReqKill      = "kill"
	ReqClose     = "close"
	ReqForget    = "forget"
)

// Request is the JSON payload sent from sessionctl to sessiond. Fields
// are tagged omitempty so a Request only carries what its Type needs.
type Request struct {
	Type      string            `json:"type"`
	SessionID string            `json:"sessionId,omitempty"`
	Variant   string            `json:"variant,omitempty"`
	ProfileID string            `json:"profileId,omitempty"`
	Cwd       string            `json:"cwd,omitempty"`
	ExtraArgs []string          `json:"extraArgs,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	AuthMode  string            `json:"authMode,omitempty"`

	Data        string `json:"data,omitempty"`
	Cols        int    `json:"cols,omitempty"`
	Rows        int    `json:"rows,omitempty"`
	SignalOnly  bool   `json:"signalOnly,omitempty"`
	Force       bool   `json:"force,omitempty"`
	GraceMs     int    `json:"graceMs,omitempty"`
}

// SessionInfo is a point-in-time snapshot of a session's status.
type SessionInfo struct {
	ID        string `json:"id"`
	Variant   string `json:"variant"`
	ProfileID string `json:"profileId,omitempty"`
	Running   bool   `json:"running"`
	PID       int    `json:"pid,omitempty"`
	ExitCode  *int   `json:"exitCode,omitempty"`
	Signal    *int   `json:"signal,omitempty"`
}

// Response is the JSON payload returned by the daemon for all
// non-attach commands.
type Response struct {
	OK         bool          `json:"ok"`
	Error      string        `json:"error,omitempty"`
	SessionID  string        `json:"sessionId,omitempty"`
	Sessions   []SessionInfo `json:"sessions,omitempty"`
	Status     *SessionInfo  `json:"status,omitempty"`
	Existed    bool          `json:"existed,omitempty"`
	WasRunning bool          `json:"wasRunning,omitempty"`
}

// ─── Attach stream framing ──────────────────────────────────────────────
//
// After the JSON handshake the attach connection becomes asymmetric:
//
//   Server → Client : raw PTY output bytes (no framing; terminal
//                      handles escapes)
//   Client → Server : length-prefixed frames:
//
//     [1 byte type][4 bytes big-endian length][payload]
//
//     0x00  data      – stdin bytes to write into the PTY
//     0x01  resize    – payload: 2-byte cols + 2-byte rows (big-endian uint16)
//     0x02  interrupt – payload: 1 byte, nonzero means signal-only
//     0x03  detach    – no payload; client wants to detach cleanly

const (
	AttachFrameData      byte = 0x00
	AttachFrameResize    byte = 0x01
	AttachFrameInterrupt byte = 0x02
	AttachFrameDetach    byte = 0x03
)

const maxFrameBytes = 1 << 20 // 1 MiB sanity cap

// WriteFrame writes a single framed message to w.
func WriteFrame(w io.Writer, frameType byte, payload []byte) error {
	hdr := make([]byte, 5)
	hdr[0] = frameType
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(payload)))
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	if len(payload) > 0 {
		_, err := w.Write(payload)
		return err
	}
	return nil
}

// ReadFrame reads a single framed message from r.
func ReadFrame(r io.Reader) (frameType byte, payload []byte, err error) {
	hdr := make([]byte, 5)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return 0, nil, err
	}
	frameType = hdr[0]
	n := binary.BigEndian.Uint32(hdr[1:])
	if n > maxFrameBytes {
		return 0, nil, fmt.Errorf("attach frame too large: %d bytes", n)
	}
	if n == 0 {
		return frameType, nil, nil
	}
	payload = make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return frameType, payload, nil
}

// EncodeResize packs cols/rows into a resize frame payload.
func EncodeResize(cols, rows int) []byte {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload[0:2], uint16(cols))
	binary.BigEndian.PutUint16(payload[2:4], uint16(rows))
	return payload
}

// DecodeResize unpacks a resize frame payload.
func DecodeResize(payload []byte) (cols, rows int, err error) {
	if len(payload) != 4 {
		return 0, 0, fmt.Errorf("resize frame: want 4 bytes, got %d", len(payload))
	}
	return int(binary.BigEndian.Uint16(payload[0:2])), int(binary.BigEndian.Uint16(payload[2:4])), nil
}
