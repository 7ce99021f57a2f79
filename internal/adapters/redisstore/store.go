package redisstore

// Package redisstore provides a Redis-backed credential store for deployments
// where the session must survive restarts on a host without durable local disk.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainauth "github.com/dealdesk/sessioncore/internal/domain/auth"
	autherrors "github.com/dealdesk/sessioncore/internal/errors"
	"github.com/dealdesk/sessioncore/internal/ports"
	"github.com/redis/go-redis/v9"
)

// DefaultRefreshGrace is how long a record outlives its access token expiry.
// The refresh token is still usable after the access token lapses, so the
// record must not vanish the moment the access token does.
const DefaultRefreshGrace = 30 * 24 * time.Hour

// Store keeps the credential record under a single prefixed key with a TTL
// derived from the access token expiry plus a refresh grace period.
type Store struct {
	client       redis.UniversalClient
	key          string
	refreshGrace time.Duration
}

var _ ports.CredentialStore = (*Store)(nil)

// NewStore creates a Redis-backed credential store scoped to ownerKey
// (typically an install or profile identifier).
func NewStore(client redis.UniversalClient, ownerKey string) *Store {
	return NewStoreWithGrace(client, ownerKey, DefaultRefreshGrace)
}

// NewStoreWithGrace creates a store with a custom refresh grace period.
func NewStoreWithGrace(client redis.UniversalClient, ownerKey string, grace time.Duration) *Store {
	if grace <= 0 {
		grace = DefaultRefreshGrace
	}
	return &Store{
		client:       client,
		key:          "credentials:" + ownerKey,
		refreshGrace: grace,
	}
}

func (s *Store) Load(ctx context.Context) (domainauth.CredentialRecord, error) {
	data, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.CredentialRecord{}, ports.ErrNoRecord
		}
		return domainauth.CredentialRecord{}, fmt.Errorf("redis get: %w", err)
	}

	var rec domainauth.CredentialRecord
	if unmarshalErr := json.Unmarshal([]byte(data), &rec); unmarshalErr != nil {
		return domainauth.CredentialRecord{}, autherrors.StoreCorrupt(unmarshalErr)
	}
	if !rec.Valid() {
		return domainauth.CredentialRecord{}, autherrors.StoreCorrupt(errors.New("incomplete credential record"))
	}

	return rec, nil
}

func (s *Store) Save(ctx context.Context, rec domainauth.CredentialRecord) error {
	if !rec.Valid() {
		return errors.New("refusing to persist a partial credential record")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal credential record: %w", err)
	}

	// SET is atomic, so a concurrent reader sees the old record or the new
	// one, never a mix.
	ttl := time.Until(rec.Expiry()) + s.refreshGrace
	if ttl <= 0 {
		return errors.New("credential record is past its refresh grace")
	}

	return s.client.Set(ctx, s.key, data, ttl).Err()
}

func (s *Store) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
