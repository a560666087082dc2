package users

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/campuslink/go-campus-client/api"
)

// Service exposes profile operations for the signed-in user.
type Service struct {
	client *api.Client
}

func NewService(client *api.Client) *Service {
	return &Service{client: client}
}

// Me fetches the authoritative profile snapshot from the server.
func (s *Service) Me(ctx context.Context) (*User, error) {
	env, err := s.client.Dispatch(ctx, "GET", "/users/me", nil)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Me] fetch profile")
	}

	var user User
	if err := env.Decode(&user); err != nil {
		return nil, errors.Wrap(err, "[Service.Me] decode profile")
	}
	return &user, nil
}

// UploadAvatar replaces the user's avatar with the raw image bytes read
// from r. The payload bypasses JSON encoding and is sent with the given
// content type.
func (s *Service) UploadAvatar(ctx context.Context, contentType string, r io.Reader) (*User, error) {
	env, err := s.client.Dispatch(ctx, "PATCH", "/users/me/avatar", nil, api.RawBody(contentType, r))
	if err != nil {
		return nil, errors.Wrap(err, "[Service.UploadAvatar] upload")
	}

	var user User
	if err := env.Decode(&user); err != nil {
		return nil, errors.Wrap(err, "[Service.UploadAvatar] decode profile")
	}
	return &user, nil
}
