package idptest

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/users"
)

var (
	errAccountExists  = errors.New("User already exists")
	errUnknownAccount = errors.New("User not found")
)

// account is a registered user. Passwords are only kept as bcrypt hashes.
type account struct {
	sub              string
	email            string
	username         string
	fullName         *string
	role             users.Role
	passwordHash     string
	confirmed        bool
	confirmationCode string
}

func (a *account) profile() users.Profile {
	return users.Profile{
		Username: a.username,
		Email:    a.email,
		FullName: a.fullName,
		Role:     a.role,
		IsActive: a.confirmed,
		UserSub:  utils.Ptr(a.sub),
	}
}

func (a *account) checkPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)) == nil
}

// issuedToken is an access token and the account it authenticates.
type issuedToken struct {
	email     string
	expiresAt time.Time
}

// User seeds an account.
type User struct {
	Email     string
	Password  string
	FullName  string
	Role      users.Role
	Confirmed bool
}

func newAccount(u User, cost int) (*account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), cost)
	if err != nil {
		return nil, errors.Wrap(err, "[newAccount] hash password")
	}
	role := u.Role
	if !role.Valid() {
		role = users.RoleUser
	}
	a := &account{
		sub:              uuid.NewString(),
		email:            strings.ToLower(u.Email),
		username:         usernameFromEmail(u.Email),
		role:             role,
		passwordHash:     string(hash),
		confirmed:        u.Confirmed,
		confirmationCode: confirmationCode(),
	}
	if u.FullName != "" {
		a.fullName = utils.Ptr(u.FullName)
	}
	return a, nil
}

func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return strings.ToLower(local)
}

// confirmationCode returns six digits taken from a random UUID.
func confirmationCode() string {
	id := uuid.New()
	code := make([]byte, 6)
	for i := range code {
		code[i] = '0' + id[i]%10
	}
	return string(code)
}
