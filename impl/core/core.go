// Package core holds the registration logic: token validation, the atomic
// registration transaction, and the existence check. The durable store is
// the only authority for decisions that consume a token use or claim an
// email address; the cache accelerates reads and may fast-deny on facts
// that cannot un-happen, but never fast-allows.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mailgate/entity"
	"mailgate/lib/sl"
)

type Store interface {
	CreateToken(ctx context.Context, token *entity.Token) error
	GetToken(ctx context.Context, id string) (*entity.Token, error)
	GetUserByEmail(ctx context.Context, email string) (*entity.User, error)
	RegisterUser(ctx context.Context, user *entity.User) error
}

type Cache interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool)
	Set(ctx context.Context, key string, value any, ttl time.Duration)
}

type Recorder interface {
	Record(ctx context.Context, e *entity.AuditEntry)
}

// Config is the immutable per-deployment state the core needs; injected at
// construction, never read from the environment here.
type Config struct {
	Domain           string
	DefaultMaxUses   int
	DefaultCreatedBy string
	UserTTL          time.Duration
	UserCheckTTL     time.Duration
	UserNegativeTTL  time.Duration
	TokenSnapshotTTL time.Duration
}

type Core struct {
	store Store
	cache Cache
	audit Recorder
	conf  Config
	log   *slog.Logger
}

func New(store Store, cache Cache, audit Recorder, conf Config, log *slog.Logger) *Core {
	if store == nil {
		panic("store is nil")
	}
	if conf.DefaultMaxUses == 0 {
		conf.DefaultMaxUses = 5
	}
	if conf.DefaultCreatedBy == "" {
		conf.DefaultCreatedBy = "root"
	}
	return &Core{
		store: store,
		cache: cache,
		audit: audit,
		conf:  conf,
		log:   log.With(sl.Module("core")),
	}
}

func tokenKey(id string) string   { return "token:" + id }
func userKey(email string) string { return "user:" + email }

func (c *Core) email(local string) string {
	return local + "@" + c.conf.Domain
}

// CreateToken is the administrative insert. No invariant to protect beyond
// identifier uniqueness, which the primary key guarantees.
func (c *Core) CreateToken(ctx context.Context, maxUses int, createdBy string) (*entity.Token, error) {
	if maxUses <= 0 {
		maxUses = c.conf.DefaultMaxUses
	}
	if createdBy == "" {
		createdBy = c.conf.DefaultCreatedBy
	}
	token := &entity.Token{
		ID:        uuid.NewString(),
		MaxUses:   maxUses,
		Used:      0,
		Status:    entity.TokenActive,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.CreateToken(ctx, token); err != nil {
		return nil, err
	}
	c.log.Info("token created",
		sl.Secret("token", token.ID),
		slog.Int("max_uses", token.MaxUses),
		slog.String("created_by", token.CreatedBy),
	)
	return token, nil
}

// ValidateToken classifies a token without consuming anything. A cached
// snapshot may short-circuit only into a denial: disabled and exhausted are
// monotone, so staleness cannot turn them false. A cached "usable" proves
// nothing and falls through to the store, which also refreshes the snapshot.
func (c *Core) ValidateToken(ctx context.Context, id string) (entity.TokenState, error) {
	if state, denied := c.cachedDenial(ctx, id); denied {
		return state, nil
	}

	token, err := c.store.GetToken(ctx, id)
	if err != nil {
		return entity.TokenUnknown, fmt.Errorf("read token: %w", err)
	}
	if token == nil {
		return entity.TokenUnknown, nil
	}
	c.cacheToken(ctx, token)
	return token.State(), nil
}

// cachedDenial inspects the cached snapshot and reports a denying state
// when it holds one. Both denials are monotone facts, so staleness cannot
// make them wrong; anything else, including a cached "usable", is ignored.
func (c *Core) cachedDenial(ctx context.Context, id string) (entity.TokenState, bool) {
	if c.cache == nil {
		return entity.TokenUnknown, false
	}
	raw, ok := c.cache.Get(ctx, tokenKey(id))
	if !ok {
		return entity.TokenUnknown, false
	}
	var snap entity.TokenSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return entity.TokenUnknown, false
	}
	if state := snap.State(); state == entity.TokenStateOff || state == entity.TokenExhausted {
		return state, true
	}
	return entity.TokenUnknown, false
}

func (c *Core) cacheToken(ctx context.Context, token *entity.Token) {
	if c.cache != nil {
		c.cache.Set(ctx, tokenKey(token.ID), token.Snapshot(), c.conf.TokenSnapshotTTL)
	}
}

func (c *Core) cacheUser(ctx context.Context, email string, snap *entity.UserSnapshot, ttl time.Duration) {
	if c.cache != nil {
		c.cache.Set(ctx, userKey(email), snap, ttl)
	}
}

// RegisterAccount performs the registration. Gates, in order: local-part
// pattern, token state against the durable store, then the transactional
// mutation whose own atomic checks (unique email key, conditional use
// increment) are the real enforcement points. However many instances run
// concurrently, a token never backs more users than its MaxUses.
func (c *Core) RegisterAccount(ctx context.Context, tokenID, localPart, ip string) (*entity.User, error) {
	log := c.log.With(
		sl.Secret("token", tokenID),
		slog.String("local_part", localPart),
	)

	if !entity.ValidLocalPart(localPart) {
		return nil, entity.ErrInvalidLocalPart
	}

	// a cached snapshot may cut the request short, but only to deny
	if state, denied := c.cachedDenial(ctx, tokenID); denied {
		return nil, stateErr(state)
	}

	// the token must be usable per the store right now; a cached snapshot
	// is never the last word before consuming a limited resource
	state, token, err := c.validateForUse(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if state != entity.TokenUsable {
		return nil, stateErr(state)
	}

	now := time.Now().UTC()
	user := &entity.User{
		ID:            uuid.NewString(),
		Email:         c.email(localPart),
		LocalPart:     localPart,
		Domain:        c.conf.Domain,
		TokenID:       tokenID,
		Status:        entity.UserStatusActive,
		StoragePrefix: localPart + "/",
		CreatedAt:     now,
	}

	err = c.store.RegisterUser(ctx, user)
	c.record(ctx, user, ip, err)
	if err != nil {
		return nil, err
	}

	log.Info("account registered", slog.String("email", user.Email))

	c.cacheUser(ctx, user.Email, &entity.UserSnapshot{
		Exists: true,
		Status: ptr(user.Status),
	}, c.conf.UserTTL)

	if c.cache != nil {
		c.cache.Set(ctx, tokenKey(tokenID), &entity.TokenSnapshot{
			Used:    token.Used + 1,
			MaxUses: token.MaxUses,
			Status:  token.Status,
		}, c.conf.TokenSnapshotTTL)
	}

	return user, nil
}

// validateForUse reads the token straight from the store, skipping the
// cache, and writes the fresh snapshot back through.
func (c *Core) validateForUse(ctx context.Context, id string) (entity.TokenState, *entity.Token, error) {
	token, err := c.store.GetToken(ctx, id)
	if err != nil {
		return entity.TokenUnknown, nil, fmt.Errorf("read token: %w", err)
	}
	if token == nil {
		return entity.TokenUnknown, nil, nil
	}
	c.cacheToken(ctx, token)
	return token.State(), token, nil
}

// record writes the audit entry for an attempt that reached the mutation
// stage. A committed registration stays successful even if the audit write
// fails; the recorder logs and alerts instead of propagating.
func (c *Core) record(ctx context.Context, user *entity.User, ip string, err error) {
	if c.audit == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, entity.ErrUserExists):
		result = "user_exists"
	case errors.Is(err, entity.ErrTokenExhausted):
		result = "token_exhausted"
	case errors.Is(err, entity.ErrTokenDisabled):
		result = "token_disabled"
	case errors.Is(err, entity.ErrTokenUnknown):
		result = "invalid_token"
	default:
		result = "error"
	}
	c.audit.Record(ctx, &entity.AuditEntry{
		Actor:  user.Email,
		Action: entity.AuditActionRegister,
		Target: user.ID,
		Result: result,
		IP:     ip,
	})
}

// CheckUser answers the existence question. Staleness is acceptable here;
// no resource bound rides on the answer, so a cache hit returns as-is. A
// negative answer is cached for a shorter period so fresh registrations
// become visible promptly.
func (c *Core) CheckUser(ctx context.Context, localPart string) (*entity.UserSnapshot, error) {
	email := c.email(localPart)

	if c.cache != nil {
		if raw, ok := c.cache.Get(ctx, userKey(email)); ok {
			var snap entity.UserSnapshot
			if err := json.Unmarshal(raw, &snap); err == nil {
				return &snap, nil
			}
		}
	}

	user, err := c.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("read user: %w", err)
	}

	snap := &entity.UserSnapshot{}
	ttl := c.conf.UserNegativeTTL
	if user != nil {
		snap.Exists = true
		snap.Status = ptr(user.Status)
		ttl = c.conf.UserCheckTTL
	}
	c.cacheUser(ctx, email, snap, ttl)
	return snap, nil
}

func stateErr(state entity.TokenState) error {
	switch state {
	case entity.TokenStateOff:
		return entity.ErrTokenDisabled
	case entity.TokenExhausted:
		return entity.ErrTokenExhausted
	case entity.TokenUsable:
		return nil
	}
	return entity.ErrTokenUnknown
}

func ptr(s string) *string { return &s }
