package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/nacl/box"
)

// sealFor plays the web login page: it seals payload for the published key.
func sealFor(t *testing.T, publicKey, payload string) string {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(publicKey)
	if err != nil || len(raw) != 32 {
		t.Fatalf("bad public key %q: %v", publicKey, err)
	}
	var pub [32]byte
	copy(pub[:], raw)
	sealed, err := box.SealAnonymous(nil, []byte(payload), &pub, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(sealed)
}

func TestSession_SubmitCompletesAwait(t *testing.T) {
	s := New()
	pub, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	done := make(chan Result, 1)
	go func() {
		res, err := s.Await(context.Background())
		if err != nil {
			t.Errorf("Await failed: %v", err)
		}
		done <- res
	}()

	// Give the waiter a chance to register; Await also handles the late case.
	time.Sleep(10 * time.Millisecond)
	res, err := s.Submit(sealFor(t, pub, `{"token":"sess-1","key":"k"}`))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if res.Token != "sess-1" || res.Key != "k" {
		t.Errorf("unexpected result %+v", res)
	}

	select {
	case got := <-done:
		if got.Token != "sess-1" {
			t.Errorf("waiter got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Await did not return")
	}

	// Late callers see the completed result.
	late, err := s.Await(context.Background())
	if err != nil || late.Token != "sess-1" {
		t.Errorf("late Await = %+v, %v", late, err)
	}
}

func TestSession_Errors(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		if _, err := New().Submit("AAAA"); !errors.Is(err, ErrNoSession) {
			t.Errorf("expected ErrNoSession, got %v", err)
		}
		if _, err := New().Await(context.Background()); !errors.Is(err, ErrNoSession) {
			t.Errorf("expected ErrNoSession from Await, got %v", err)
		}
	})

	t.Run("not base64", func(t *testing.T) {
		s := New()
		_, _ = s.Begin()
		if _, err := s.Submit("%%%"); !errors.Is(err, ErrInvalidBox) {
			t.Errorf("expected ErrInvalidBox, got %v", err)
		}
	})

	t.Run("sealed for another key", func(t *testing.T) {
		other := New()
		otherPub, _ := other.Begin()
		s := New()
		_, _ = s.Begin()
		if _, err := s.Submit(sealFor(t, otherPub, `{"token":"x"}`)); !errors.Is(err, ErrInvalidBox) {
			t.Errorf("expected ErrInvalidBox, got %v", err)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		s := New()
		pub, _ := s.Begin()
		if _, err := s.Submit(sealFor(t, pub, `{"key":"k"}`)); !errors.Is(err, ErrInvalidBox) {
			t.Errorf("expected ErrInvalidBox, got %v", err)
		}
	})

	t.Run("box is single use", func(t *testing.T) {
		s := New()
		pub, _ := s.Begin()
		b := sealFor(t, pub, `{"token":"t"}`)
		if _, err := s.Submit(b); err != nil {
			t.Fatalf("first submit failed: %v", err)
		}
		if _, err := s.Submit(b); !errors.Is(err, ErrNoSession) {
			t.Errorf("expected ErrNoSession on replay, got %v", err)
		}
	})
}

func TestSession_AwaitCancelled(t *testing.T) {
	s := New()
	_, _ = s.Begin()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.waiters) != 0 {
		t.Errorf("cancelled waiter not removed: %d", len(s.waiters))
	}
}

func TestSession_SubmitAuthCodeLogsFailures(t *testing.T) {
	// Must not panic without a pending login.
	New().SubmitAuthCode("garbage")
}
