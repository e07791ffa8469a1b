package domain

// DefaultRole is assigned to accounts registered without a role.
const DefaultRole = "employee"

// User represents a registered account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
}

// Sanitized returns a copy of the user without its password hash.
func (u *User) Sanitized() *User {
	if u == nil {
		return nil
	}
	return &User{
		ID:       u.ID,
		Username: u.Username,
		Role:     u.Role,
	}
}
