package session

import "github.com/jrsteele09/go-auth-client/users"

// Status is the coarse session state.
type Status int

const (
	// Initializing lasts until the stored credentials have been inspected
	Initializing Status = iota
	Unauthenticated
	Authenticated
)

func (s Status) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	}
	return "unknown"
}

// Verification records whether an authenticated user's profile came from
// the identity service in this process or only from the stored snapshot.
type Verification int

const (
	// Unverified profiles come from the credential store snapshot
	Unverified Verification = iota
	// Verified profiles were returned by the identity service
	Verified
)

func (v Verification) String() string {
	if v == Verified {
		return "verified"
	}
	return "unverified"
}

// Snapshot is the consumer view of the session.
type Snapshot struct {
	Status          Status
	Verification    Verification
	User            *users.Profile
	IsAuthenticated bool
	IsLoading       bool
}

// state is owned by Manager and only touched with Manager.mu held.
type state struct {
	status       Status
	verification Verification
	user         *users.Profile
}

func (s state) snapshot(loading bool) Snapshot {
	snap := Snapshot{
		Status:          s.status,
		Verification:    s.verification,
		IsAuthenticated: s.status == Authenticated,
		IsLoading:       loading,
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

func initializing() state {
	return state{status: Initializing}
}

func unauthenticated() state {
	return state{status: Unauthenticated}
}

func authenticated(user *users.Profile, v Verification) state {
	var u *users.Profile
	if user != nil {
		cp := *user
		u = &cp
	}
	return state{status: Authenticated, verification: v, user: u}
}
