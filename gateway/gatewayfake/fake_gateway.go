package gatewayfake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-client/gateway"
	"github.com/jrsteele09/go-auth-client/users"
)

var (
	_ gateway.Gateway         = (*FakeGateway)(nil)
	_ gateway.TokenRefresher  = (*FakeGateway)(nil)
	_ gateway.SignUpConfirmer = (*FakeGateway)(nil)
)

// FakeGateway is a scriptable gateway.Gateway. Each operation calls the
// matching Func field when set; unset fields fail with a network failure so
// that unexpected calls are visible in tests.
type FakeGateway struct {
	SignUpFunc         func(ctx context.Context, req gateway.SignUpRequest) (*gateway.SignUpResponse, error)
	ConfirmSignUpFunc  func(ctx context.Context, req gateway.ConfirmSignUpRequest) (*gateway.MessageResponse, error)
	SignInFunc         func(ctx context.Context, req gateway.SignInRequest) (*gateway.SignInResponse, error)
	SignOutFunc        func(ctx context.Context, accessToken string) (*gateway.MessageResponse, error)
	GetCurrentUserFunc func(ctx context.Context, accessToken string) (*users.Profile, error)
	RefreshTokenFunc   func(ctx context.Context, req gateway.RefreshTokenRequest) (*gateway.RefreshTokenResponse, error)

	lock  sync.Mutex
	calls map[string]int
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{calls: make(map[string]int)}
}

// Calls returns how many times the named operation ran, e.g. "SignIn".
func (g *FakeGateway) Calls(op string) int {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.calls[op]
}

func (g *FakeGateway) record(op string) {
	g.lock.Lock()
	defer g.lock.Unlock()
	if g.calls == nil {
		g.calls = make(map[string]int)
	}
	g.calls[op]++
}

func (g *FakeGateway) SignUp(ctx context.Context, req gateway.SignUpRequest) (*gateway.SignUpResponse, error) {
	g.record("SignUp")
	if g.SignUpFunc == nil {
		return nil, gateway.NewNetworkFailure(nil)
	}
	return g.SignUpFunc(ctx, req)
}

func (g *FakeGateway) ConfirmSignUp(ctx context.Context, req gateway.ConfirmSignUpRequest) (*gateway.MessageResponse, error) {
	g.record("ConfirmSignUp")
	if g.ConfirmSignUpFunc == nil {
		return nil, gateway.NewNetworkFailure(nil)
	}
	return g.ConfirmSignUpFunc(ctx, req)
}

func (g *FakeGateway) SignIn(ctx context.Context, req gateway.SignInRequest) (*gateway.SignInResponse, error) {
	g.record("SignIn")
	if g.SignInFunc == nil {
		return nil, gateway.NewNetworkFailure(nil)
	}
	return g.SignInFunc(ctx, req)
}

func (g *FakeGateway) SignOut(ctx context.Context, accessToken string) (*gateway.MessageResponse, error) {
	g.record("SignOut")
	if g.SignOutFunc == nil {
		return nil, gateway.NewNetworkFailure(nil)
	}
	return g.SignOutFunc(ctx, accessToken)
}

func (g *FakeGateway) GetCurrentUser(ctx context.Context, accessToken string) (*users.Profile, error) {
	g.record("GetCurrentUser")
	if g.GetCurrentUserFunc == nil {
		return nil, gateway.NewNetworkFailure(nil)
	}
	return g.GetCurrentUserFunc(ctx, accessToken)
}

func (g *FakeGateway) RefreshToken(ctx context.Context, req gateway.RefreshTokenRequest) (*gateway.RefreshTokenResponse, error) {
	g.record("RefreshToken")
	if g.RefreshTokenFunc == nil {
		return nil, gateway.NewNetworkFailure(nil)
	}
	return g.RefreshTokenFunc(ctx, req)
}
