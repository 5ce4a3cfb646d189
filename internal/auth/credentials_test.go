package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestStore() *CredentialStore {
	store, err := NewCredentialStore(bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return store
}

func TestCredentialStoreRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("stores a hashed password with the user role", func(t *testing.T) {
		store := newTestStore()

		user, err := store.Register(ctx, "a@example.com", "secret1")
		require.NoError(t, err)
		require.Equal(t, "a@example.com", user.Email)
		require.Equal(t, RoleUser, user.Role)
		require.NotZero(t, user.ID)
		require.NotEqual(t, "secret1", user.PasswordHash)
		require.True(t, strings.HasPrefix(user.PasswordHash, "$2a$"))

		found, ok := store.FindByEmail(ctx, "a@example.com")
		require.True(t, ok)
		require.Equal(t, user, found)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		tests := []struct {
			name     string
			email    string
			password string
			field    string
		}{
			{"missing at sign", "a.example.com", "secret1", "email"},
			{"missing domain suffix", "a@example", "secret1", "email"},
			{"empty email", "", "secret1", "email"},
			{"short password", "a@example.com", "12345", "password"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				store := newTestStore()

				_, err := store.Register(ctx, tt.email, tt.password)
				var validationErr *ValidationError
				require.ErrorAs(t, err, &validationErr)
				require.Equal(t, tt.field, validationErr.Field)
				require.Zero(t, store.Count())
			})
		}
	})

	t.Run("counts characters not bytes for the minimum", func(t *testing.T) {
		store := newTestStore()

		_, err := store.Register(ctx, "a@example.com", "пароль")
		require.NoError(t, err)
	})

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		store := newTestStore()

		_, err := store.Register(ctx, "a@example.com", "secret1")
		require.NoError(t, err)

		_, err = store.Register(ctx, "a@example.com", "secret2")
		var conflictErr *ConflictError
		require.ErrorAs(t, err, &conflictErr)
		require.Equal(t, "a@example.com", conflictErr.Key)
		require.Equal(t, 1, store.Count())
	})

	t.Run("concurrent registrations of one email admit exactly one", func(t *testing.T) {
		store := newTestStore()

		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Register(ctx, "race@example.com", "secret1")
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		var succeeded, conflicts int
		for err := range errs {
			var conflictErr *ConflictError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &conflictErr):
				conflicts++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		require.Equal(t, 1, succeeded)
		require.Equal(t, workers-1, conflicts)
	})

	t.Run("ids stay unique within one second", func(t *testing.T) {
		store := newTestStore()
		fixed := time.Unix(1_700_000_000, 0)
		store.now = func() time.Time { return fixed }

		first, err := store.Register(ctx, "a@example.com", "secret1")
		require.NoError(t, err)
		second, err := store.Register(ctx, "b@example.com", "secret1")
		require.NoError(t, err)

		require.Equal(t, fixed.Unix(), first.ID)
		require.Equal(t, fixed.Unix()+1, second.ID)
	})

	t.Run("canceled context stops before hashing", func(t *testing.T) {
		store := newTestStore()
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := store.Register(canceled, "a@example.com", "secret1")
		require.ErrorIs(t, err, context.Canceled)
		require.Zero(t, store.Count())
	})
}

func TestCredentialStoreLongPassword(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	password := strings.Repeat("p", 100)

	user, err := store.Register(ctx, "a@example.com", password)
	require.NoError(t, err)
	require.True(t, store.VerifyPassword(user, password))
	require.True(t, store.VerifyPassword(user, password[:72]+"anything"))
	require.False(t, store.VerifyPassword(user, password[:71]))
}

func TestNewCredentialStore(t *testing.T) {
	store, err := NewCredentialStore(bcrypt.MaxCost + 1)
	require.NoError(t, err)
	require.Equal(t, bcrypt.DefaultCost, store.hashCost)

	cost, err := bcrypt.Cost(store.dummyHash)
	require.NoError(t, err)
	require.Equal(t, bcrypt.DefaultCost, cost)

	store = newTestStore()
	cost, err = bcrypt.Cost(store.dummyHash)
	require.NoError(t, err)
	require.Equal(t, bcrypt.MinCost, cost)
}

func TestCredentialStoreVerifyPassword(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	user, err := store.Register(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	require.True(t, store.VerifyPassword(user, "secret1"))
	require.False(t, store.VerifyPassword(user, "secret2"))
	require.False(t, store.VerifyPassword(User{}, "secret1"))
	require.False(t, store.VerifyPassword(User{}, ""))
}

func TestCredentialStoreRefreshToken(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	_, err := store.Register(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, store.SetRefreshToken(ctx, "a@example.com", "refresh"))
	user, _ := store.FindByEmail(ctx, "a@example.com")
	require.Equal(t, "refresh", user.RefreshToken)

	require.NoError(t, store.ClearRefreshToken(ctx, "a@example.com"))
	user, _ = store.FindByEmail(ctx, "a@example.com")
	require.Empty(t, user.RefreshToken)

	require.ErrorIs(t, store.SetRefreshToken(ctx, "nobody@example.com", "refresh"), ErrUnknownSubject)
}

func TestBootstrapAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("no credentials is a no-op", func(t *testing.T) {
		store := newTestStore()
		require.NoError(t, BootstrapAdmin(ctx, store, "", ""))
		require.Zero(t, store.Count())
	})

	t.Run("half configured fails", func(t *testing.T) {
		store := newTestStore()
		require.Error(t, BootstrapAdmin(ctx, store, "admin@example.com", ""))
	})

	t.Run("seeds an admin once", func(t *testing.T) {
		store := newTestStore()
		require.NoError(t, BootstrapAdmin(ctx, store, "admin@example.com", "adminpass"))
		require.NoError(t, BootstrapAdmin(ctx, store, "admin@example.com", "adminpass"))

		admin, ok := store.FindByEmail(ctx, "admin@example.com")
		require.True(t, ok)
		require.Equal(t, RoleAdmin, admin.Role)
		require.Equal(t, 1, store.Count())
	})
}
