// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

// Package redis stores verification tokens in Redis. Each identifier owns a
// single hash key, so reissuing a token replaces the previous one.
package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/internal/poll"
)

const (
	keyPrefix = "vt:"

	fieldHash    = "token_hash"
	fieldExpires = "expires_at"
	fieldCreated = "created_at"

	// DefaultGrace keeps an expired token readable long enough to report
	// it as expired instead of unknown.
	DefaultGrace = 24 * time.Hour
)

// DefaultContention retries a Consume whose WATCH was broken by a
// concurrent write.
var DefaultContention = poll.Schedule(0, 0, 0)

// purgeIfUnchanged deletes KEYS[1] only while its expiry still reads ARGV[1].
var purgeIfUnchanged = redis.NewScript(`
if redis.call("HGET", KEYS[1], "` + fieldExpires + `") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TokenRepository implements auth.VerificationTokenRepository on Redis.
type TokenRepository struct {
	client  redis.UniversalClient
	grace   time.Duration
	contend poll.Policy
}

// Option configures a TokenRepository.
type Option func(*TokenRepository)

// WithGrace sets how long a key outlives its token's expiry.
func WithGrace(d time.Duration) Option {
	return func(r *TokenRepository) { r.grace = d }
}

// WithContention sets how often Consume retries a broken WATCH.
func WithContention(p poll.Policy) Option {
	return func(r *TokenRepository) { r.contend = p }
}

// NewTokenRepository creates a repository over client.
func NewTokenRepository(client redis.UniversalClient, opts ...Option) *TokenRepository {
	r := &TokenRepository{client: client, grace: DefaultGrace, contend: DefaultContention}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func key(identifier string) string {
	return keyPrefix + identifier
}

// Replace stores token as the only token for its identifier.
func (r *TokenRepository) Replace(ctx context.Context, token *auth.VerificationToken) error {
	k := key(token.Identifier)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k,
			fieldHash, token.TokenHash,
			fieldExpires, strconv.FormatInt(token.ExpiresAt.UnixNano(), 10),
			fieldCreated, strconv.FormatInt(token.CreatedAt.UnixNano(), 10),
		)
		pipe.PExpireAt(ctx, k, token.ExpiresAt.Add(r.grace))
		return nil
	})
	if err != nil {
		return oops.Code("TOKEN_REPLACE_FAILED").With("identifier", token.Identifier).Wrap(err)
	}
	return nil
}

// Consume deletes and returns the token when tokenHash matches. A
// concurrent consumer that loses the WATCH race sees ErrNotFound.
func (r *TokenRepository) Consume(ctx context.Context, identifier, tokenHash string) (*auth.VerificationToken, error) {
	k := key(identifier)
	out, err := poll.Until(ctx, r.contend, func(ctx context.Context) (*auth.VerificationToken, bool, error) {
		var consumed *auth.VerificationToken
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			fields, err := tx.HGetAll(ctx, k).Result()
			if err != nil {
				return err
			}
			if len(fields) == 0 || fields[fieldHash] != tokenHash {
				return auth.ErrNotFound
			}
			token, err := decode(identifier, fields)
			if err != nil {
				return err
			}
			if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, k)
				return nil
			}); err != nil {
				return err
			}
			consumed = token
			return nil
		}, k)
		if errors.Is(err, redis.TxFailedErr) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return consumed, true, nil
	})
	switch {
	case errors.Is(err, auth.ErrNotFound):
		return nil, oops.Code("TOKEN_ROW_NOT_FOUND").With("identifier", identifier).Wrap(auth.ErrNotFound)
	case err != nil:
		return nil, oops.Code("TOKEN_CONSUME_FAILED").With("identifier", identifier).Wrap(err)
	case out.TimedOut:
		return nil, oops.Code("TOKEN_ROW_NOT_FOUND").
			With("identifier", identifier).
			With("attempts", out.Attempts).
			Wrap(auth.ErrNotFound)
	}
	return out.Value, nil
}

// DeleteByIdentifier removes the identifier's token, if any.
func (r *TokenRepository) DeleteByIdentifier(ctx context.Context, identifier string) error {
	if err := r.client.Del(ctx, key(identifier)).Err(); err != nil {
		return oops.Code("TOKEN_DELETE_FAILED").With("identifier", identifier).Wrap(err)
	}
	return nil
}

// DeleteExpired removes tokens that expired before the cutoff. Keys still
// inside their grace window are only reachable this way. A token reissued
// between the read and the delete survives.
func (r *TokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	var (
		deleted int64
		cursor  uint64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return deleted, oops.Code("TOKEN_PURGE_FAILED").Wrap(err)
		}
		for _, k := range keys {
			raw, err := r.client.HGet(ctx, k, fieldExpires).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return deleted, oops.Code("TOKEN_PURGE_FAILED").With("key", k).Wrap(err)
			}
			expires, err := parseNanos(raw)
			if err != nil || !expires.Before(before) {
				continue
			}
			n, err := purgeIfUnchanged.Run(ctx, r.client, []string{k}, raw).Int64()
			if err != nil {
				return deleted, oops.Code("TOKEN_PURGE_FAILED").With("key", k).Wrap(err)
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

func decode(identifier string, fields map[string]string) (*auth.VerificationToken, error) {
	expires, err := parseNanos(fields[fieldExpires])
	if err != nil {
		return nil, oops.Code("TOKEN_CORRUPT").With("identifier", identifier).With("field", fieldExpires).Wrap(err)
	}
	created, err := parseNanos(fields[fieldCreated])
	if err != nil {
		return nil, oops.Code("TOKEN_CORRUPT").With("identifier", identifier).With("field", fieldCreated).Wrap(err)
	}
	return &auth.VerificationToken{
		Identifier: identifier,
		TokenHash:  fields[fieldHash],
		ExpiresAt:  expires,
		CreatedAt:  created,
	}, nil
}

func parseNanos(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n).UTC(), nil
}
