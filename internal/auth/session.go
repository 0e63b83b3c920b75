package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SessionSource resolves the stored credential to a session. It returns
// ErrUnauthenticated or ErrUnauthorized when the credential is not usable;
// any other error is treated as a server error.
type SessionSource interface {
	CurrentSession(ctx context.Context) (Session, error)
}

// CredentialStore holds the bearer token between runs.
type CredentialStore interface {
	Token() string
	SetToken(token string) error
	Clear() error
}

// MemoryCredentials keeps the token in process memory.
type MemoryCredentials struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryCredentials(token string) *MemoryCredentials {
	return &MemoryCredentials{token: token}
}

func (m *MemoryCredentials) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *MemoryCredentials) SetToken(token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryCredentials) Clear() error {
	return m.SetToken("")
}

// FileCredentials stores the token in a file readable only by the owner.
type FileCredentials struct {
	path string
	mu   sync.Mutex
}

func NewFileCredentials(path string) *FileCredentials {
	return &FileCredentials{path: path}
}

// Token returns the stored token, or "" if the file is missing or unreadable.
func (f *FileCredentials) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (f *FileCredentials) SetToken(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create credential dir: %w", err)
		}
	}
	if err := os.WriteFile(f.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	return nil
}

func (f *FileCredentials) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credential: %w", err)
	}
	return nil
}

// Restorer owns the session state of one client. It starts pending when a
// credential is stored and resolves it with a single call to the source.
// Login and Logout always win over a restore that finishes after them.
type Restorer struct {
	source SessionSource
	creds  CredentialStore
	logger *slog.Logger

	mu    sync.RWMutex
	state SessionState
	gen   uint64

	once sync.Once
	done chan struct{}
	err  error
}

func NewRestorer(source SessionSource, creds CredentialStore, logger *slog.Logger) *Restorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Restorer{
		source: source,
		creds:  creds,
		logger: logger,
		state:  SessionState{Pending: creds.Token() != ""},
		done:   make(chan struct{}),
	}
}

// State returns a snapshot of the current session state.
func (r *Restorer) State() SessionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Decide runs the gate against the current state.
func (r *Restorer) Decide(allowed RoleSet) Decision {
	return Decide(r.State(), allowed)
}

// Navigate runs the route table against the current state.
func (r *Restorer) Navigate(path string) Decision {
	return Navigate(r.State(), path)
}

// Restore fetches the session once. A rejected credential is cleared and
// the session becomes unauthenticated. On a server error the credential is
// kept and the last known state stays; a pending state gets Failed set so
// callers can tell it apart from a fetch in flight. A result is dropped if Login or Logout ran while the fetch was
// outstanding.
func (r *Restorer) Restore(ctx context.Context) error {
	r.mu.Lock()
	gen := r.gen
	token := r.creds.Token()
	if token == "" {
		r.state = SessionState{}
		r.mu.Unlock()
		return nil
	}
	r.state.Failed = false
	r.mu.Unlock()

	session, err := r.source.CurrentSession(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen != gen {
		r.logger.Info("session changed during restore, result dropped")
		return nil
	}

	switch {
	case err == nil:
		session.Authenticated = true
		r.state = SessionState{Session: session}
		r.logger.Info("session restored", "staff_id", session.StaffID, "role", session.Role)
		return nil

	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrUnauthenticated):
		if r.creds.Token() == token {
			if cerr := r.creds.Clear(); cerr != nil {
				r.logger.Warn("failed to clear credential", "error", cerr)
			}
		}
		r.state = SessionState{}
		r.logger.Info("stored credential rejected", "error", err)
		return nil

	default:
		if r.state.Pending {
			r.state.Failed = true
		}
		r.logger.Warn("session restore failed", "error", err)
		return fmt.Errorf("restore session: %w", err)
	}
}

// Start runs Restore in the background. Only the first call has an effect.
func (r *Restorer) Start(ctx context.Context) {
	r.once.Do(func() {
		go func() {
			err := r.Restore(ctx)
			r.mu.Lock()
			r.err = err
			r.mu.Unlock()
			close(r.done)
		}()
	})
}

// Wait blocks until the restoration started by Start finishes and returns
// its error.
func (r *Restorer) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Login stores a freshly issued token together with its session.
func (r *Restorer) Login(token string, session Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.creds.SetToken(token); err != nil {
		return err
	}
	r.gen++
	session.Authenticated = true
	r.state = SessionState{Session: session}
	return nil
}

// Logout clears the credential and the session.
func (r *Restorer) Logout() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.creds.Clear()
	r.gen++
	r.state = SessionState{}
	return err
}
