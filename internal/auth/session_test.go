package auth

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

type stubSource struct {
	session Session
	err     error
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (s *stubSource) CurrentSession(ctx context.Context) (Session, error) {
	s.calls.Add(1)
	if s.entered != nil {
		close(s.entered)
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return Session{}, ctx.Err()
		}
	}
	return s.session, s.err
}

func TestRestorerInitialState(t *testing.T) {
	withToken := NewRestorer(&stubSource{}, NewMemoryCredentials("tok"), nil)
	if !withToken.State().Pending {
		t.Error("expected pending with stored credential")
	}

	without := NewRestorer(&stubSource{}, NewMemoryCredentials(""), nil)
	if without.State().Pending {
		t.Error("expected not pending without credential")
	}
	if d := without.Decide(RoleSet{RoleDoctor}); d.Kind != DecisionRedirectToLogin {
		t.Errorf("expected login redirect, got %v", d.Kind)
	}
}

func TestRestoreSuccess(t *testing.T) {
	src := &stubSource{session: Session{Role: RoleDoctor, StaffID: 4, Name: "Dr. Vet"}}
	r := NewRestorer(src, NewMemoryCredentials("tok"), nil)

	if err := r.Restore(context.Background()); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	state := r.State()
	if state.Pending || !state.Session.Authenticated || state.Session.Role != RoleDoctor {
		t.Errorf("unexpected state %+v", state)
	}
	if d := r.Navigate("/doctor/dashboard"); d.Kind != DecisionAllow {
		t.Errorf("expected allow, got %v", d.Kind)
	}
}

func TestRestoreRejectedCredentialClears(t *testing.T) {
	for _, rejection := range []error{ErrUnauthorized, ErrUnauthenticated} {
		creds := NewMemoryCredentials("expired")
		r := NewRestorer(&stubSource{err: rejection}, creds, nil)

		if err := r.Restore(context.Background()); err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
		if creds.Token() != "" {
			t.Error("expected credential cleared")
		}
		if d := r.Decide(AnyRole); d.Kind != DecisionRedirectToLogin {
			t.Errorf("expected login redirect, got %v", d.Kind)
		}
	}
}

func TestRestoreServerErrorKeepsCredential(t *testing.T) {
	boom := errors.New("502 bad gateway")
	creds := NewMemoryCredentials("tok")
	r := NewRestorer(&stubSource{err: boom}, creds, nil)

	err := r.Restore(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected server error propagated, got %v", err)
	}
	if creds.Token() != "tok" {
		t.Error("credential must be kept on server error")
	}
	if d := r.Decide(RoleSet{RoleAdmin}); d.Kind == DecisionRedirectToLogin {
		t.Error("server error must not log the user out")
	}
	if state := r.State(); !state.Pending || !state.Failed {
		t.Errorf("expected pending and failed, got %+v", state)
	}
}

func TestRestoreRetryClearsFailed(t *testing.T) {
	src := &stubSource{err: errors.New("503")}
	r := NewRestorer(src, NewMemoryCredentials("tok"), nil)

	if err := r.Restore(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	src.err = nil
	src.session = Session{Role: RoleDoctor}
	if err := r.Restore(context.Background()); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if state := r.State(); state.Pending || state.Failed || state.Session.Role != RoleDoctor {
		t.Errorf("unexpected state %+v", state)
	}
}

// startBlocked starts a restore and returns once the source has been called.
func startBlocked(t *testing.T, r *Restorer, src *stubSource) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	r.Start(ctx)
	select {
	case <-src.entered:
	case <-ctx.Done():
		t.Fatal("restore never reached the source")
	}
	return ctx
}

func TestLogoutDuringRestoreWins(t *testing.T) {
	src := &stubSource{
		session: Session{Role: RoleAdmin, StaffID: 1},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	creds := NewMemoryCredentials("old-token")
	r := NewRestorer(src, creds, nil)

	ctx := startBlocked(t, r, src)
	if err := r.Logout(); err != nil {
		t.Fatal(err)
	}
	close(src.release)
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if state := r.State(); state.Session.Authenticated || state.Pending {
		t.Errorf("logout undone by late restore: %+v", state)
	}
	if d := r.Navigate("/admin/staff"); d.Kind != DecisionRedirectToLogin {
		t.Errorf("expected login redirect, got %v", d.Kind)
	}
	if creds.Token() != "" {
		t.Errorf("token = %q, want empty", creds.Token())
	}
}

func TestLoginDuringRestoreKeepsFreshToken(t *testing.T) {
	src := &stubSource{
		err:     ErrUnauthorized,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	creds := NewMemoryCredentials("old-token")
	r := NewRestorer(src, creds, nil)

	ctx := startBlocked(t, r, src)
	if err := r.Login("fresh-token", Session{Role: RoleDoctor, StaffID: 9}); err != nil {
		t.Fatal(err)
	}
	close(src.release)
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if creds.Token() != "fresh-token" {
		t.Errorf("token = %q, want fresh-token", creds.Token())
	}
	state := r.State()
	if !state.Session.Authenticated || state.Session.Role != RoleDoctor {
		t.Errorf("login undone by late rejection: %+v", state)
	}
}

func TestRejectionKeepsTokenReplacedOutsideRestorer(t *testing.T) {
	src := &stubSource{
		err:     ErrUnauthorized,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	creds := NewMemoryCredentials("old-token")
	r := NewRestorer(src, creds, nil)

	ctx := startBlocked(t, r, src)
	creds.SetToken("other-token")
	close(src.release)
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if creds.Token() != "other-token" {
		t.Errorf("token = %q, want other-token", creds.Token())
	}
	if r.State().Session.Authenticated {
		t.Error("expected unauthenticated after rejection")
	}
}

func TestStartReportsPendingUntilDone(t *testing.T) {
	src := &stubSource{
		session: Session{Role: RoleReceptionist},
		release: make(chan struct{}),
	}
	r := NewRestorer(src, NewMemoryCredentials("tok"), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	r.Start(ctx)
	r.Start(ctx) // second call is a no-op

	if d := r.Navigate("/receptionist/dashboard"); d.Kind != DecisionPending {
		t.Errorf("expected pending while restoring, got %v", d.Kind)
	}

	close(src.release)
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if d := r.Navigate("/receptionist/dashboard"); d.Kind != DecisionAllow {
		t.Errorf("expected allow after restore, got %v", d.Kind)
	}
	if src.calls.Load() != 1 {
		t.Errorf("expected exactly one fetch, got %d", src.calls.Load())
	}
}

func TestLoginLogout(t *testing.T) {
	creds := NewMemoryCredentials("")
	r := NewRestorer(&stubSource{}, creds, nil)

	if err := r.Login("new-token", Session{Role: RoleAdmin, StaffID: 1}); err != nil {
		t.Fatal(err)
	}
	if creds.Token() != "new-token" || !r.State().Session.Authenticated {
		t.Error("expected token stored and session authenticated")
	}

	if err := r.Logout(); err != nil {
		t.Fatal(err)
	}
	if creds.Token() != "" || r.State().Session.Authenticated {
		t.Error("expected token and session cleared")
	}
}

func TestFileCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")
	creds := NewFileCredentials(path)

	if creds.Token() != "" {
		t.Error("expected empty token for missing file")
	}
	if err := creds.SetToken("abc.def.ghi"); err != nil {
		t.Fatal(err)
	}
	if got := creds.Token(); got != "abc.def.ghi" {
		t.Errorf("Token() = %q", got)
	}
	if err := creds.Clear(); err != nil {
		t.Fatal(err)
	}
	if err := creds.Clear(); err != nil {
		t.Errorf("clearing twice should not fail: %v", err)
	}
	if creds.Token() != "" {
		t.Error("expected empty token after clear")
	}
}
