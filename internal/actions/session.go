package actions

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dotcommander/forgotyet/internal/auth"
	"github.com/dotcommander/forgotyet/internal/models"
)

// AuthStatusResult is the session snapshot shown by auth status.
type AuthStatusResult struct {
	models.Session
	LoggedIn     bool       `json:"logged_in"`
	TokenExpires *time.Time `json:"token_expires,omitempty"`
	ExpiresIn    string     `json:"expires_in,omitempty"`
	LastEmail    string     `json:"last_email,omitempty"`
	LastPhone    string     `json:"last_phone,omitempty"`
}

// AuthStatus reports the current session. The expiry is a hint read from
// JWT-shaped tokens without verification.
func AuthStatus(r *Runtime) AuthStatusResult {
	s := r.Auth.Session()
	res := AuthStatusResult{
		Session:   s,
		LoggedIn:  s.LoggedIn(),
		LastEmail: r.Auth.LastIdentity(models.ChannelEmail),
		LastPhone: r.Auth.LastIdentity(models.ChannelSMS),
	}
	if exp, ok := auth.TokenExpiry(s.Token); ok {
		res.TokenExpires = &exp
		res.ExpiresIn = humanize.Time(exp)
	}
	return res
}

// SelectChannel switches the login channel.
func SelectChannel(r *Runtime, raw string) (models.Session, error) {
	ch, err := models.ParseChannel(raw)
	if err != nil {
		return models.Session{}, err
	}
	if err := r.Auth.SelectChannel(ch); err != nil {
		return models.Session{}, err
	}
	return r.Auth.Session(), nil
}

// RequestCode sends a one-time code on the active channel, switching channel
// first when one is given.
func RequestCode(ctx context.Context, r *Runtime, channel, identity string) (models.Session, error) {
	if channel != "" {
		if _, err := SelectChannel(r, channel); err != nil {
			return models.Session{}, err
		}
	}
	if err := r.Auth.RequestCode(ctx, identity); err != nil {
		return models.Session{}, err
	}
	return r.Auth.Session(), nil
}

// LoginResult is the session after a successful login plus the refreshed cache size.
type LoginResult struct {
	models.Session
	CachedEvents int `json:"cached_events"`
}

// Login exchanges a one-time code for a session. An empty identity reuses the
// one the code was sent to.
func Login(ctx context.Context, r *Runtime, identity, code, boundEmail string) (*LoginResult, error) {
	if err := r.Auth.ConfirmCode(ctx, identity, code, boundEmail); err != nil {
		return nil, err
	}
	return &LoginResult{Session: r.Auth.Session(), CachedEvents: len(r.Events.Events())}, nil
}

// Logout forgets the session. The event snapshot is cleared too so another
// account never sees it.
func Logout(r *Runtime) models.Session {
	r.Auth.Logout()
	r.Events.Seed(nil, time.Time{})
	if err := r.Cache.SaveEvents(nil); err != nil {
		r.logger.Warn("failed to clear event cache", "error", err.Error())
	}
	return r.Auth.Session()
}
