package session

import "github.com/pkg/errors"

// Profile is the authenticated user as reported by the backend. It is only
// ever replaced wholesale, never mutated field by field.
type Profile struct {
	ID    string  `json:"id"`
	Email string  `json:"email"`
	Role  string  `json:"role"`
	Name  *string `json:"name,omitempty"`
}

// State is the session view exposed to UI layers. Loading is true only
// during the initial bootstrap profile check and false forever after,
// regardless of later sign-in and sign-out transitions.
type State struct {
	User    *Profile
	Loading bool
}

func (s State) Authenticated() bool {
	return s.User != nil
}

var ErrNotAuthenticated = errors.New("not authenticated")

type credentialsRequest struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	User         *Profile `json:"user"`
}

type profileResponse struct {
	User *Profile `json:"user"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
	// RefreshToken is only present when the backend rotates it.
	RefreshToken string `json:"refreshToken"`
}
