package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"sync"
)

// Tools is the external Tools Table collaborator: variant -> command
// spec, required at Registry construction (see internal/profile).
type Tools map[Variant]CommandSpec

// Registry maps session ids to Sessions. It also owns the auxiliary
// ClosingSet (ids currently in shutdown) and, for variant-A sessions
// only, nothing extra beyond what Session itself already holds (the
// write queue lives on the Session so a Registry can be torn down and
// rebuilt without leaking per-session state elsewhere).
type Registry struct {
	tools          Tools
	supervisorCwd  string
	defaultSubmitA bool

	mu         sync.Mutex
	sessions   map[string]*Session
	closingSet map[string]struct{}
}

// NewRegistry constructs a Registry. tools must contain an entry for
// every variant the caller intends to create sessions for; supervisorCwd
// is the working directory used when CreateOptions.Cwd is empty (the
// process cwd is used only if supervisorCwd is empty too). defaultSubmitA seeds new variant-A sessions'
// submitWithTab (see ambient.go).
func NewRegistry(tools Tools, supervisorCwd string, defaultSubmitA bool) *Registry {
	return &Registry{
		tools:          tools,
		supervisorCwd:  supervisorCwd,
		defaultSubmitA: defaultSubmitA,
		sessions:       make(map[string]*Session),
		closingSet:     make(map[string]struct{}),
	}
}

// CreateSession spawns a new PTY child and registers the resulting
// Session atomically: either it is fully registered with listeners
// attached, or no side effect remains and an error is returned.
func (r *Registry) CreateSession(opts CreateOptions) (string, error) {
	if !opts.Variant.Valid() {
		return "", fmt.Errorf("%w: invalid variant %q", ErrSpawnFailed, opts.Variant)
	}

	id := opts.ID
	if id == "" {
		id = generateSessionID()
	}

	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	r.mu.Unlock()

	spec, ok := r.tools[opts.Variant]
	if !ok {
		return "", fmt.Errorf("%w: no tools-table entry for variant %q", ErrSpawnFailed, opts.Variant)
	}

	cwd := opts.Cwd
	if cwd == "" {
		cwd = r.supervisorCwd
	}
	if cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			cwd = wd
		}
	}

	env := buildChildEnv(opts.Variant, os.Environ(), opts.Env, opts.AuthMode)
	args := append(append([]string{}, spec.Args...), opts.ExtraArgs...)

	child, err := spawnPTYChild(spec.Command, args, cwd, env)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	submitWithTab := opts.Variant == VariantA && r.defaultSubmitA
	sess := newSession(id, opts.Variant, opts.ProfileID, child, submitWithTab)
	sess.registryMu = &r.mu
	sess.closingSetRef = r.closingSet

	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		sess.Forget()
		return "", fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	r.sessions[id] = sess
	r.mu.Unlock()

	return id, nil
}

// get returns the session for id, or nil.
func (r *Registry) get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// mustGet returns the session for id or ErrUnknownSession.
func (r *Registry) mustGet(id string) (*Session, error) {
	s := r.get(id)
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return s, nil
}

// Session returns the registered Session for id, so a transport layer
// can read its Variant/ProfileID/GetStatus without the Registry having
// to re-expose every accessor itself.
func (r *Registry) Session(id string) (*Session, error) {
	return r.mustGet(id)
}

// GetStatus returns the status of a registered session.
func (r *Registry) GetStatus(id string) (Status, error) {
	s, err := r.mustGet(id)
	if err != nil {
		return Status{}, err
	}
	return s.GetStatus(), nil
}

// OnOutput subscribes fn to a registered session's output.
func (r *Registry) OnOutput(id string, fn func([]byte)) (func(), error) {
	s, err := r.mustGet(id)
	if err != nil {
		return nil, err
	}
	return s.OnOutput(fn), nil
}

// OnExit subscribes fn to a registered session's exit event.
func (r *Registry) OnExit(id string, fn func(Status)) (func(), error) {
	s, err := r.mustGet(id)
	if err != nil {
		return nil, err
	}
	return s.OnExit(fn), nil
}

// Write writes data to a registered session. Writes during Closing are
// a documented silent-drop rather than ErrUnknownSession, so this only
// returns an error for a genuinely unregistered id.
func (r *Registry) Write(id string, data string) error {
	s, err := r.mustGet(id)
	if err != nil {
		return err
	}
	s.Write(data)
	return nil
}

// Resize resizes a registered session's PTY.
func (r *Registry) Resize(id string, cols, rows uint16) error {
	s, err := r.mustGet(id)
	if err != nil {
		return err
	}
	s.Resize(cols, rows)
	return nil
}

// Interrupt delivers ^C/SIGINT to a registered session.
func (r *Registry) Interrupt(id string, signalOnly bool) error {
	s, err := r.mustGet(id)
	if err != nil {
		return err
	}
	s.Interrupt(signalOnly)
	return nil
}

// Stop is equivalent to Interrupt(id, false).
func (r *Registry) Stop(id string) error {
	s, err := r.mustGet(id)
	if err != nil {
		return err
	}
	s.Stop()
	return nil
}

// Kill sends SIGKILL to a registered session's child pid.
func (r *Registry) Kill(id string) error {
	s, err := r.mustGet(id)
	if err != nil {
		return err
	}
	s.Kill()
	return nil
}

// Close runs the shutdown sequence for id. Unlike the other operations,
// an absent id is not an error: close is idempotent and always returns a
// result.
func (r *Registry) Close(id string, force bool, graceMs int) CloseResult {
	s := r.get(id)
	if s == nil {
		return CloseResult{Existed: false, WasRunning: false}
	}

	r.mu.Lock()
	r.closingSet[id] = struct{}{}
	r.mu.Unlock()

	result := s.Close(force, graceMs)

	r.mu.Lock()
	delete(r.closingSet, id)
	delete(r.sessions, id)
	r.mu.Unlock()

	return result
}

// Forget clears a session's listeners and removes it from the Registry.
func (r *Registry) Forget(id string) {
	s := r.get(id)
	if s == nil {
		return
	}
	s.Forget()

	r.mu.Lock()
	delete(r.sessions, id)
	delete(r.closingSet, id)
	r.mu.Unlock()
}

// Dispose sends SIGKILL to every session and clears all Registry state.
// Intended for process shutdown.
func (r *Registry) Dispose() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	for _, s := range all {
		s.Kill()
		s.Forget()
	}

	r.mu.Lock()
	r.sessions = make(map[string]*Session)
	r.closingSet = make(map[string]struct{})
	r.mu.Unlock()
}

// List returns a snapshot of every registered session id.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// generateSessionID returns a fresh opaque 12-char urlsafe token.
func generateSessionID() string {
	buf := make([]byte, 9) // 9 raw bytes -> 12 base64url chars, no padding
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unrecoverable on any real
		// platform; fall back to a fixed-width degraded token rather
		// than panicking the caller.
		return "deadbeefcafe"
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
