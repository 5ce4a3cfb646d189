package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"regexp"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

var emailRegex = regexp.MustCompile(`(?i)^[\w+-]+(?:\.[\w+-]+)*@[\da-z]+(?:[.-][\da-z]+)*\.[a-z]{2,}$`)

const (
	minPasswordLength = 6
	// bcrypt only reads the first 72 bytes of a password.
	bcryptInputBytes = 72
	defaultHashCost  = bcrypt.DefaultCost
)

// CredentialStore keeps registered users in memory, keyed by email.
type CredentialStore struct {
	mu     sync.RWMutex
	users  map[string]*User
	lastID int64

	hashCost  int
	dummyHash []byte
	now       func() time.Time
}

// NewCredentialStore hashes with the given bcrypt cost, falling back to the
// default when it is out of range. The dummy hash used for unknown emails is
// built here at the same cost.
func NewCredentialStore(hashCost int) (*CredentialStore, error) {
	if hashCost < bcrypt.MinCost || hashCost > bcrypt.MaxCost {
		hashCost = defaultHashCost
	}

	dummyHash, err := newDummyHash(hashCost)
	if err != nil {
		return nil, fmt.Errorf("build dummy hash: %w", err)
	}

	return &CredentialStore{
		users:     make(map[string]*User),
		hashCost:  hashCost,
		dummyHash: dummyHash,
		now:       time.Now,
	}, nil
}

func (s *CredentialStore) Register(ctx context.Context, email, password string) (User, error) {
	return s.RegisterWithRole(ctx, email, password, RoleUser)
}

func (s *CredentialStore) RegisterWithRole(ctx context.Context, email, password string, role Role) (User, error) {
	if err := validateCredentials(email, password); err != nil {
		return User{}, err
	}
	if role != RoleAdmin && role != RoleUser {
		return User{}, &ValidationError{Field: "role", Message: "role is invalid"}
	}

	// Fail fast before paying for the hash if the email is taken.
	if _, ok := s.FindByEmail(ctx, email); ok {
		return User{}, &ConflictError{Key: email}
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword(bcryptInput(password), s.hashCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[email]; exists {
		return User{}, &ConflictError{Key: email}
	}

	now := s.now().UTC()
	user := &User{
		ID:           s.nextIDLocked(now),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    now,
	}
	s.users[email] = user

	return *user, nil
}

func (s *CredentialStore) FindByEmail(_ context.Context, email string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[email]
	if !ok {
		return User{}, false
	}
	return *user, true
}

// VerifyPassword reports whether candidate matches the user's stored hash.
// A zero User (unknown email) is checked against a dummy hash so both
// failure cases cost one bcrypt comparison.
func (s *CredentialStore) VerifyPassword(user User, candidate string) bool {
	hash := []byte(user.PasswordHash)
	if len(hash) == 0 {
		hash = s.dummyHash
	}

	err := bcrypt.CompareHashAndPassword(hash, bcryptInput(candidate))
	return err == nil && user.PasswordHash != ""
}

func (s *CredentialStore) SetRefreshToken(_ context.Context, email, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[email]
	if !ok {
		return fmt.Errorf("set refresh token for %q: %w", email, ErrUnknownSubject)
	}
	user.RefreshToken = token
	return nil
}

func (s *CredentialStore) ClearRefreshToken(ctx context.Context, email string) error {
	return s.SetRefreshToken(ctx, email, "")
}

func (s *CredentialStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// nextIDLocked returns the creation unix timestamp, bumped past the last
// issued id when several users register within the same second.
func (s *CredentialStore) nextIDLocked(now time.Time) int64 {
	id := now.Unix()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

func newDummyHash(cost int) ([]byte, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return bcrypt.GenerateFromPassword(secret, cost)
}

// bcryptInput cuts password to the bytes bcrypt reads. Longer passwords are
// accepted and compared on their first 72 bytes.
func bcryptInput(password string) []byte {
	if len(password) > bcryptInputBytes {
		return []byte(password[:bcryptInputBytes])
	}
	return []byte(password)
}

func validateCredentials(email, password string) error {
	if !emailRegex.MatchString(email) {
		return &ValidationError{Field: "email", Message: "email is invalid"}
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return &ValidationError{Field: "password", Message: fmt.Sprintf("password must be at least %d characters", minPasswordLength)}
	}
	return nil
}
