package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// BootstrapAdmin seeds an admin account from configuration. Both values empty
// is a no-op; an admin that already exists is left untouched.
func BootstrapAdmin(ctx context.Context, users *CredentialStore, email, password string) error {
	email = strings.TrimSpace(email)
	password = strings.TrimSpace(password)

	if email == "" && password == "" {
		return nil
	}
	if email == "" || password == "" {
		return errors.New("ADMIN_EMAIL and ADMIN_PASSWORD are required together")
	}

	_, err := users.RegisterWithRole(ctx, email, password, RoleAdmin)
	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("register admin: %w", err)
	}

	return nil
}
