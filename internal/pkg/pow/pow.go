/*
Package pow implements the Proof-of-Work (PoW) gate used to slow down automated sign-ups.

A client fetches a nonce, searches for a counter such that sha256(nonce+counter) in hex
starts with the configured number of zeros, and trades the proof for a short-lived,
single-use Proof Token that it presents when creating a user.
*/
package pow

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"chatdir/internal/pkg/randx"
)

const (
	// TokenHeaderKey is the HTTP header key used by the client to send the Proof Token.
	TokenHeaderKey = "X-PoW-Token"

	// ProofTokenDuration is the validity period for the Proof Token issued after successful PoW validation.
	ProofTokenDuration = 2 * time.Minute

	// NonceExpiryDuration is the validity period for the challenge Nonce.
	NonceExpiryDuration = 5 * time.Minute
)

var (
	// ErrNonceInvalid is returned for unknown, expired or already used nonces.
	ErrNonceInvalid = errors.New("nonce expired or invalid")

	// ErrProofInsufficient is returned when the hash misses the difficulty target.
	ErrProofInsufficient = errors.New("proof does not meet difficulty requirement")
)

// Manager tracks outstanding challenges and issued Proof Tokens.
// A Manager with difficulty 0 is disabled and accepts every request.
type Manager struct {
	// difficulty is the required number of leading zeros for the PoW challenge hash.
	difficulty int

	// nonces stores active nonces and their expiration times.
	nonces map[string]time.Time

	// tokens stores issued Proof Tokens and their expiration times.
	tokens map[string]time.Time

	// mu protects concurrent access to nonces and tokens.
	mu sync.Mutex

	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a Manager for the given difficulty and starts its janitor goroutine.
func NewManager(difficulty int) *Manager {
	mgr := &Manager{
		difficulty: difficulty,
		nonces:     make(map[string]time.Time),
		tokens:     make(map[string]time.Time),
		now:        time.Now,
		stop:       make(chan struct{}),
	}

	go mgr.cleanupExpiredEntries()

	return mgr
}

// Enabled reports whether sign-ups must carry a Proof Token.
func (m *Manager) Enabled() bool {
	return m.difficulty > 0
}

// Difficulty returns the number of leading hex zeros a proof must have.
func (m *Manager) Difficulty() int {
	return m.difficulty
}

// GenerateNonce issues a new challenge nonce.
func (m *Manager) GenerateNonce() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	nonce := randx.Nonce()
	m.nonces[nonce] = m.now().Add(NonceExpiryDuration)
	return nonce
}

// Solve brute-forces a counter for nonce. It exists for tests and tooling.
func Solve(nonce string, difficulty int) string {
	for i := 0; ; i++ {
		counter := strconv.Itoa(i)
		if meetsDifficulty(nonce, counter, difficulty) {
			return counter
		}
	}
}

// ValidateProof checks the proof for nonce and, on success, consumes the nonce and
// returns a new Proof Token.
func (m *Manager) ValidateProof(nonce, counter string) (string, error) {
	if !meetsDifficulty(nonce, counter, m.difficulty) {
		return "", ErrProofInsufficient
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiry, ok := m.nonces[nonce]
	if !ok || m.now().After(expiry) {
		return "", ErrNonceInvalid
	}
	delete(m.nonces, nonce)

	token := randx.Nonce()
	m.tokens[token] = m.now().Add(ProofTokenDuration)
	return token, nil
}

// ConsumeProofToken reports whether the request carries a valid Proof Token in the
// X-PoW-Token header, and invalidates it so it cannot be replayed.
func (m *Manager) ConsumeProofToken(r *http.Request) bool {
	token := r.Header.Get(TokenHeaderKey)
	if token == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiry, ok := m.tokens[token]
	if !ok {
		return false
	}
	delete(m.tokens, token)

	return !m.now().After(expiry)
}

// Stop terminates the janitor goroutine. It is safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func meetsDifficulty(nonce, counter string, difficulty int) bool {
	hash := sha256.Sum256([]byte(nonce + counter))
	return strings.HasPrefix(hex.EncodeToString(hash[:]), strings.Repeat("0", difficulty))
}

func (m *Manager) purge() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for nonce, expiry := range m.nonces {
		if now.After(expiry) {
			delete(m.nonces, nonce)
		}
	}
	for token, expiry := range m.tokens {
		if now.After(expiry) {
			delete(m.tokens, token)
		}
	}
}

func (m *Manager) cleanupExpiredEntries() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.purge()
		}
	}
}
