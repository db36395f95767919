package authflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teleautogram/internal/transport"
)

// fakeTransport scripts the sign-in outcomes the handshake must absorb.
type fakeTransport struct {
	mu             sync.Mutex
	authorized     bool
	codeErrs       []error
	passwordErrs   []error
	codeRequests   int
	requestCodeErr error
	incoming       chan transport.Incoming
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{incoming: make(chan transport.Incoming)}
}

func (f *fakeTransport) Connect(ctx context.Context) error { return nil }

func (f *fakeTransport) IsAuthorized(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authorized, nil
}

func (f *fakeTransport) RequestLoginCode(ctx context.Context, identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codeRequests++
	return f.requestCodeErr
}

func (f *fakeTransport) SignInWithCode(ctx context.Context, identity, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.codeErrs) == 0 {
		return nil
	}
	err := f.codeErrs[0]
	f.codeErrs = f.codeErrs[1:]
	return err
}

func (f *fakeTransport) SignInWithPassword(ctx context.Context, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.passwordErrs) == 0 {
		return nil
	}
	err := f.passwordErrs[0]
	f.passwordErrs = f.passwordErrs[1:]
	return err
}

func (f *fakeTransport) Incoming() <-chan transport.Incoming { return f.incoming }

func (f *fakeTransport) SendMessage(ctx context.Context, peerID int64, text string) error {
	return nil
}

func (f *fakeTransport) AcknowledgeRead(ctx context.Context, chatID, messageID int64) error {
	return nil
}

func (f *fakeTransport) FetchHistory(ctx context.Context, peerID int64, limit int, beforeID int64) ([]transport.PeerMessage, error) {
	return nil, nil
}

func (f *fakeTransport) Disconnect() error { return nil }

func (f *fakeTransport) requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codeRequests
}

func waitForStatus(t *testing.T, s *Session, want Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State().Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status never became %s, last: %+v", want, s.State())
}

func TestAlreadyAuthorized(t *testing.T) {
	tr := newFakeTransport()
	tr.authorized = true
	s := NewSession(tr, "+100000", nil)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, StatusAuthorized, s.State().Status)
	assert.Equal(t, 0, tr.requests())
}

func TestCodeFlowHappyPath(t *testing.T) {
	tr := newFakeTransport()
	s := NewSession(tr, "+100000", nil)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	waitForStatus(t, s, StatusWaitingCode)
	s.SubmitCode("12345")

	require.NoError(t, <-done)
	assert.Equal(t, StatusAuthorized, s.State().Status)
}

func TestInvalidCodeKeepsWaiting(t *testing.T) {
	tr := newFakeTransport()
	tr.codeErrs = []error{transport.ErrInvalidCode}
	s := NewSession(tr, "+100000", nil)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	waitForStatus(t, s, StatusWaitingCode)
	s.SubmitCode("bogus")

	// Rejected code self-loops with a visible error.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st := s.State()
		if st.Status == StatusWaitingCode && st.Err != "" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	st := s.State()
	assert.Equal(t, StatusWaitingCode, st.Status)
	assert.NotEmpty(t, st.Err)

	s.SubmitCode("12345")
	require.NoError(t, <-done)
	assert.Equal(t, StatusAuthorized, s.State().Status)
}

func TestExpiredCodeIsResent(t *testing.T) {
	tr := newFakeTransport()
	tr.codeErrs = []error{transport.ErrCodeExpired}
	s := NewSession(tr, "+100000", nil)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	waitForStatus(t, s, StatusWaitingCode)
	s.SubmitCode("stale")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tr.requests() == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 2, tr.requests(), "expired code must trigger a re-request")

	s.SubmitCode("fresh")
	require.NoError(t, <-done)
	assert.Equal(t, StatusAuthorized, s.State().Status)
}

func TestSecondFactorFlow(t *testing.T) {
	tr := newFakeTransport()
	tr.codeErrs = []error{transport.ErrNeedsSecondFactor}
	tr.passwordErrs = []error{transport.ErrInvalidPassword}
	s := NewSession(tr, "+100000", nil)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	waitForStatus(t, s, StatusWaitingCode)
	s.SubmitCode("12345")
	waitForStatus(t, s, StatusWaitingPassword)

	s.SubmitPassword("wrong")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st := s.State()
		if st.Status == StatusWaitingPassword && st.Err != "" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	st := s.State()
	assert.Equal(t, StatusWaitingPassword, st.Status)
	assert.NotEmpty(t, st.Err)

	s.SubmitPassword("correct horse")
	require.NoError(t, <-done)
	assert.Equal(t, StatusAuthorized, s.State().Status)
}

func TestCodeRequestFailureIsTerminal(t *testing.T) {
	tr := newFakeTransport()
	tr.requestCodeErr = errors.New("flood wait")
	s := NewSession(tr, "+100000", nil)

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusError, s.State().Status)
}

func TestInputTimeoutIsTerminal(t *testing.T) {
	tr := newFakeTransport()
	s := NewSession(tr, "+100000", nil, WithInputTimeout(30*time.Millisecond))

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusError, s.State().Status)
	assert.NotEmpty(t, s.State().Err)
}
