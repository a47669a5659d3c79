package session

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"mellium.im/sasl"
	"mellium.im/xmpp/jid"

	"github.com/meszmate/rosterd/internal/logging"
)

// Authenticator checks SASL PLAIN credentials against bcrypt hashed
// account passwords of one domain
type Authenticator struct {
	mu       sync.RWMutex
	domain   string
	accounts map[string][]byte // localpart -> bcrypt hash
	logger   *logging.Logger
}

// NewAuthenticator creates an authenticator for domain. accounts maps bare
// JIDs to bcrypt hashes; entries outside domain are ignored.
func NewAuthenticator(domain string, accounts map[string]string, logger *logging.Logger) (*Authenticator, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	a := &Authenticator{
		domain:   domain,
		accounts: make(map[string][]byte),
		logger:   logger,
	}
	for bare, hash := range accounts {
		j, err := jid.Parse(bare)
		if err != nil {
			return nil, fmt.Errorf("invalid account jid %q: %w", bare, err)
		}
		if j.Domainpart() != domain {
			logger.Warn("ignoring account %s outside domain %s", j, domain)
			continue
		}
		a.accounts[j.Localpart()] = []byte(hash)
	}
	return a, nil
}

// AddAccount registers or replaces an account password
func (a *Authenticator) AddAccount(localpart, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accounts[localpart] = hash
	return nil
}

// Authenticate runs a PLAIN exchange with the client's initial response and
// binds s on success
func (a *Authenticator) Authenticate(s *Session, response []byte) error {
	var user string
	server := sasl.NewServer(sasl.Plain, func(n *sasl.Negotiator) bool {
		username, password, identity := n.Credentials()
		if len(identity) > 0 && string(identity) != string(username) && string(identity) != string(username)+"@"+a.domain {
			return false
		}
		a.mu.RLock()
		hash, ok := a.accounts[string(username)]
		a.mu.RUnlock()
		if !ok {
			return false
		}
		if bcrypt.CompareHashAndPassword(hash, password) != nil {
			return false
		}
		user = string(username)
		return true
	})

	if _, _, err := server.Step(response); err != nil {
		if errors.Is(err, sasl.ErrAuthn) {
			a.logger.Warn("authentication failed on %s", s.ConnectionID())
			return ErrAuthFailed
		}
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	full, err := jid.New(user, a.domain, s.Resource())
	if err != nil {
		return fmt.Errorf("failed to build session jid: %w", err)
	}
	s.Bind(full)
	a.logger.Info("session %s bound to %s", s.ConnectionID(), full)
	return nil
}

// PlainResponse builds the initial PLAIN response a client would send
func PlainResponse(username, password string) ([]byte, error) {
	client := sasl.NewClient(sasl.Plain, sasl.Credentials(func() ([]byte, []byte, []byte) {
		return []byte(username), []byte(password), nil
	}))
	_, resp, err := client.Step(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build plain response: %w", err)
	}
	return resp, nil
}
