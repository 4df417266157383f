package identity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gatewarden/gatewarden/internal/shared"
)

// TokenStore resolves opaque bearer tokens into principals. Tokens are
// written by the identity provider integration at login time; this
// service only reads and revokes them.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

type tokenPayload struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles,omitempty"`
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, ttl: ttl}
}

// Issue registers a principal under a fresh token and returns the token.
func (ts *TokenStore) Issue(ctx context.Context, userID string, roles []string) (string, error) {
	if userID == "" {
		return "", shared.ErrInvalidArgument
	}
	token := uuid.NewString()
	data, err := json.Marshal(tokenPayload{UserID: userID, Roles: roles})
	if err != nil {
		return "", err
	}
	if err := ts.client.Set(ctx, ts.redisKey(token), data, ts.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve returns the principal behind token, or the anonymous principal
// when the token is unknown or expired.
func (ts *TokenStore) Resolve(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return Anonymous(), nil
	}
	data, err := ts.client.Get(ctx, ts.redisKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Anonymous(), nil
		}
		return nil, err
	}
	var payload tokenPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &Principal{
		UserID:        payload.UserID,
		Authenticated: true,
		RoleClaims:    payload.Roles,
	}, nil
}

// Revoke invalidates a token.
func (ts *TokenStore) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return shared.ErrInvalidArgument
	}
	if err := ts.client.Del(ctx, ts.redisKey(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func (ts *TokenStore) redisKey(token string) string {
	return "identity:token:" + token
}
