package authflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"teleautogram/internal/transport"
)

type Status string

const (
	StatusDisconnected    Status = "disconnected"
	StatusWaitingCode     Status = "waiting_code"
	StatusWaitingPassword Status = "waiting_password"
	StatusAuthorized      Status = "authorized"
	StatusError           Status = "error"
)

// State is a read-only snapshot of the handshake.
type State struct {
	Status Status `json:"status"`
	Err    string `json:"error,omitempty"`
}

// DefaultInputTimeout bounds every wait for operator-supplied input.
const DefaultInputTimeout = 600 * time.Second

// Session drives the interactive login handshake against the transport.
// Operator input arrives out of band through SubmitCode/SubmitPassword;
// each submission wakes exactly one pending wait.
type Session struct {
	tr       transport.Transport
	identity string
	timeout  time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	state State

	codeCh     chan string
	passwordCh chan string
}

type Option func(*Session)

// WithInputTimeout overrides the operator-input timeout.
func WithInputTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewSession(tr transport.Transport, identity string, logger *zap.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		tr:         tr,
		identity:   identity,
		timeout:    DefaultInputTimeout,
		logger:     logger,
		state:      State{Status: StatusDisconnected},
		codeCh:     make(chan string, 1),
		passwordCh: make(chan string, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current handshake snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SubmitCode hands a login code to the pending wait. A second submission
// while one is already queued is dropped.
func (s *Session) SubmitCode(code string) {
	select {
	case s.codeCh <- code:
	default:
	}
}

// SubmitPassword hands the second-factor password to the pending wait.
func (s *Session) SubmitPassword(password string) {
	select {
	case s.passwordCh <- password:
	default:
	}
}

func (s *Session) setState(status Status, errMsg string) {
	s.mu.Lock()
	s.state = State{Status: status, Err: errMsg}
	s.mu.Unlock()
}

// Run performs the handshake: connect, then either confirm an existing
// authorization or walk the code (and optionally password) flow. It returns
// once the session is authorized or the run failed terminally.
func (s *Session) Run(ctx context.Context) error {
	if err := s.tr.Connect(ctx); err != nil {
		s.setState(StatusError, err.Error())
		return fmt.Errorf("connect: %w", err)
	}

	authorized, err := s.tr.IsAuthorized(ctx)
	if err != nil {
		s.setState(StatusError, err.Error())
		return fmt.Errorf("authorization check: %w", err)
	}
	if authorized {
		s.setState(StatusAuthorized, "")
		s.logger.Info("session already authorized")
		return nil
	}

	if err := s.tr.RequestLoginCode(ctx, s.identity); err != nil {
		s.setState(StatusError, err.Error())
		return fmt.Errorf("request login code: %w", err)
	}
	s.setState(StatusWaitingCode, "")
	s.logger.Info("login code requested", zap.String("identity", s.identity))

	for {
		code, err := s.await(ctx, s.codeCh)
		if err != nil {
			s.setState(StatusError, err.Error())
			return err
		}

		err = s.tr.SignInWithCode(ctx, s.identity, code)
		switch {
		case err == nil:
			s.setState(StatusAuthorized, "")
			s.logger.Info("authorized with login code")
			return nil
		case errors.Is(err, transport.ErrInvalidCode):
			s.setState(StatusWaitingCode, "invalid code, try again")
			s.logger.Warn("invalid login code submitted")
		case errors.Is(err, transport.ErrCodeExpired):
			if reqErr := s.tr.RequestLoginCode(ctx, s.identity); reqErr != nil {
				s.setState(StatusError, reqErr.Error())
				return fmt.Errorf("re-request login code: %w", reqErr)
			}
			s.setState(StatusWaitingCode, "code expired, a new one was sent")
			s.logger.Warn("login code expired, resent")
		case errors.Is(err, transport.ErrNeedsSecondFactor):
			s.setState(StatusWaitingPassword, "")
			s.logger.Info("second factor required")
			return s.passwordPhase(ctx)
		default:
			s.setState(StatusError, err.Error())
			return fmt.Errorf("sign in: %w", err)
		}
	}
}

func (s *Session) passwordPhase(ctx context.Context) error {
	for {
		password, err := s.await(ctx, s.passwordCh)
		if err != nil {
			s.setState(StatusError, err.Error())
			return err
		}

		err = s.tr.SignInWithPassword(ctx, password)
		switch {
		case err == nil:
			s.setState(StatusAuthorized, "")
			s.logger.Info("authorized with password")
			return nil
		case errors.Is(err, transport.ErrInvalidPassword):
			s.setState(StatusWaitingPassword, "invalid password, try again")
			s.logger.Warn("invalid password submitted")
		default:
			s.setState(StatusError, err.Error())
			return fmt.Errorf("password sign in: %w", err)
		}
	}
}

// await blocks until operator input arrives, the timeout elapses or the
// context ends. Only the handshake blocks here.
func (s *Session) await(ctx context.Context, ch <-chan string) (string, error) {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case v := <-ch:
		return v, nil
	case <-timer.C:
		return "", fmt.Errorf("timed out after %s waiting for operator input", s.timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
