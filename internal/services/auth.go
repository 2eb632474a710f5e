// Package services wraps the API client with endpoint-specific request and
// response shaping. Services carry no business logic beyond URL
// construction and payload mapping; callers classify and present failures.
package services

import (
	"context"

	"github.com/vlanet/videoplanet/internal/api"
	"github.com/vlanet/videoplanet/internal/auth"
	"github.com/vlanet/videoplanet/internal/users"
)

// userPayload is the user shape common to backend responses.
type userPayload struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

func (u userPayload) profile() users.User {
	return users.User{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}

// AuthService shapes the login and refresh endpoints. It satisfies
// auth.Refresher so the token manager can renew through it.
type AuthService struct {
	client *api.Client
	users  *users.Cache
}

// NewAuthService constructs the auth service. The profile cache is optional.
func NewAuthService(client *api.Client, cache *users.Cache) *AuthService {
	return &AuthService{client: client, users: cache}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         *userPayload `json:"user,omitempty"`
}

// Login exchanges credentials for a token pair.
func (s *AuthService) Login(ctx context.Context, email string, password string) (auth.Tokens, error) {
	var response tokenResponse
	request := api.Request{
		Method:          "POST",
		Path:            "/api/users/login/",
		Body:            loginRequest{Email: email, Password: password},
		Unauthenticated: true,
	}
	if err := s.client.Do(ctx, request, &response); err != nil {
		return auth.Tokens{}, err
	}
	if s.users != nil && response.User != nil {
		_ = s.users.Remember(response.User.profile())
	}
	return auth.Tokens{AccessToken: response.AccessToken, RefreshToken: response.RefreshToken}, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a refresh token for a fresh token pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (auth.Tokens, error) {
	var response tokenResponse
	request := api.Request{
		Method:          "POST",
		Path:            "/api/auth/refresh/",
		Body:            refreshRequest{RefreshToken: refreshToken},
		Unauthenticated: true,
	}
	if err := s.client.Do(ctx, request, &response); err != nil {
		return auth.Tokens{}, err
	}
	return auth.Tokens{AccessToken: response.AccessToken, RefreshToken: response.RefreshToken}, nil
}
