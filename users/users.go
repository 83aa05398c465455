package users

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/jrsteele09/go-auth-client/internal/utils"
)

// Role is the display role reported by the identity service. It is never used
// for access decisions inside this module.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Profile is the user record returned by the identity service. Profiles are
// replaced wholesale on every fetch, never patched.
type Profile struct {
	Username string  `json:"username"`
	Email    string  `json:"email"`
	FullName *string `json:"full_name,omitempty"`
	Role     Role    `json:"role"`
	IsActive bool    `json:"is_active"`
	UserSub  *string `json:"user_sub,omitempty"` // Identity service subject, when reported
}

// DisplayName prefers the full name, then the username, then the email.
func (p Profile) DisplayName() string {
	if name := strings.TrimSpace(utils.Value(p.FullName)); name != "" {
		return name
	}
	if p.Username != "" {
		return p.Username
	}
	return p.Email
}

func (p Profile) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Validate checks the fields every profile must carry.
func (p Profile) Validate() error {
	if p.Email == "" {
		return fmt.Errorf("profile email is required")
	}
	if p.Username == "" {
		return fmt.Errorf("profile username is required")
	}
	if !p.Role.Valid() {
		return fmt.Errorf("profile role %q is not recognised", p.Role)
	}
	return nil
}

// Equal compares two profiles field by field.
func (p Profile) Equal(o Profile) bool {
	return p.Username == o.Username &&
		p.Email == o.Email &&
		utils.Value(p.FullName) == utils.Value(o.FullName) &&
		(p.FullName == nil) == (o.FullName == nil) &&
		p.Role == o.Role &&
		p.IsActive == o.IsActive &&
		utils.Value(p.UserSub) == utils.Value(o.UserSub)
}

// Marshal encodes the profile as the JSON stored under the user_info key.
func (p Profile) Marshal() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal profile: %w", err)
	}
	return string(b), nil
}

// ParseProfile decodes and validates a stored or received profile.
func ParseProfile(raw []byte) (Profile, error) {
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}
