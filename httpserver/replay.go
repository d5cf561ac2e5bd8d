package httpserver

import (
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultSignatureWindow is how far a signed timestamp may drift from the
// server clock in either direction.
const DefaultSignatureWindow = 5 * time.Minute

var (
	errStaleSignature    = errors.New("signature timestamp outside the accepted window")
	errReplayedSignature = errors.New("signature already used")
)

// signatureStore remembers accepted signed requests until their timestamp
// leaves the window, so each one is honoured at most once. Entries are keyed
// by signer and digest, not by signature bytes, since several encodings of
// one signature recover to the same signer.
type signatureStore struct {
	mu        sync.Mutex
	window    time.Duration
	now       func() time.Time
	used      map[string]time.Time
	lastPrune time.Time
}

func newSignatureStore(window time.Duration) *signatureStore {
	return &signatureStore{
		window: window,
		now:    time.Now,
		used:   make(map[string]time.Time),
	}
}

// Consume accepts the request digest signed by signer at signedAt, or rejects
// it as stale or already used.
func (s *signatureStore) Consume(signer common.Address, digest []byte, signedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	at := time.Unix(signedAt, 0)
	if at.Before(now.Add(-s.window)) || at.After(now.Add(s.window)) {
		return errStaleSignature
	}

	s.pruneLocked(now)

	key := signer.Hex() + common.Bytes2Hex(digest)
	if _, ok := s.used[key]; ok {
		return errReplayedSignature
	}
	s.used[key] = at.Add(s.window)
	return nil
}

func (s *signatureStore) pruneLocked(now time.Time) {
	if now.Sub(s.lastPrune) < s.window/4 {
		return
	}
	for key, expiry := range s.used {
		if now.After(expiry) {
			delete(s.used, key)
		}
	}
	s.lastPrune = now
}

func (s *signatureStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.used)
}
