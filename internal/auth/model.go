package auth

import "time"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is the stored credential record. It never leaves the package on the
// wire; handlers respond with PublicUser instead.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         Role
	RefreshToken string
	CreatedAt    time.Time
}

type PublicUser struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email, Role: u.Role}
}

type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
