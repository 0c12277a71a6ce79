// Package session implements the browser login handshake. A login attempt
// publishes an X25519 public key; the web login page answers with a sealed
// box addressed to that key, delivered back through the
// insomnia://app/auth/finish deep link.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/crypto/nacl/box"
)

// Errors reported by the session.
var (
	ErrNoSession  = errors.New("no login in progress")
	ErrInvalidBox = errors.New("invalid auth box")
)

// Result is the decrypted content of an auth box.
type Result struct {
	Token string `json:"token"`
	Key   string `json:"key"`
}

// Session tracks a single pending login. It is safe for concurrent use.
type Session struct {
	mu      sync.Mutex
	public  *[32]byte
	private *[32]byte
	waiters []chan Result
	last    *Result
}

// New returns an idle session.
func New() *Session {
	return &Session{}
}

// Begin starts a login attempt and returns the base64url public key to
// embed in the login URL. A new attempt invalidates the previous key.
func (s *Session) Begin() (string, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate session key: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.public, s.private = pub, priv
	s.last = nil
	return base64.RawURLEncoding.EncodeToString(pub[:]), nil
}

// Submit decrypts a box and completes the pending login.
func (s *Session) Submit(encoded string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.private == nil {
		return Result{}, ErrNoSession
	}
	raw, err := decodeBox(encoded)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidBox, err)
	}
	plain, ok := box.OpenAnonymous(nil, raw, s.public, s.private)
	if !ok {
		return Result{}, fmt.Errorf("%w: decryption failed", ErrInvalidBox)
	}
	var res Result
	if err := json.Unmarshal(plain, &res); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidBox, err)
	}
	if res.Token == "" {
		return Result{}, fmt.Errorf("%w: missing token", ErrInvalidBox)
	}

	// One box per key.
	s.public, s.private = nil, nil
	s.last = &res
	for _, w := range s.waiters {
		w <- res
		close(w)
	}
	s.waiters = nil
	return res, nil
}

// SubmitAuthCode forwards a box from the deep link. Failures are logged;
// the caller has no error path.
func (s *Session) SubmitAuthCode(box string) {
	if _, err := s.Submit(box); err != nil {
		slog.Error("Failed to complete login", "error", err)
		return
	}
	slog.Info("Login completed")
}

// Await blocks until the current login completes or ctx is done. If the
// login has already completed, its result is returned immediately.
func (s *Session) Await(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if s.last != nil {
		res := *s.last
		s.mu.Unlock()
		return res, nil
	}
	if s.private == nil {
		s.mu.Unlock()
		return Result{}, ErrNoSession
	}
	ch := make(chan Result, 1)
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		s.mu.Lock()
		for i, w := range s.waiters {
			if w == ch {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		return Result{}, ctx.Err()
	}
}

func decodeBox(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("not base64")
}
