package entity

import "time"

// TokenStatus is the administrative state of an invite token.
// The only allowed transition is active → disabled; a disabled token
// is never re-enabled in this design.
type TokenStatus string

const (
	TokenActive   TokenStatus = "active"
	TokenDisabled TokenStatus = "disabled"
)

// TokenState classifies a token for registration purposes.
type TokenState string

const (
	TokenUsable    TokenState = "usable"
	TokenExhausted TokenState = "exhausted"
	TokenStateOff  TokenState = "disabled"
	TokenUnknown   TokenState = "unknown"
)

// Token is a bounded-use capability permitting registration of a limited
// number of accounts. Used never exceeds MaxUses; the durable store enforces
// the bound with a conditional update, not application logic.
type Token struct {
	ID        string      `json:"id" bson:"id"`
	MaxUses   int         `json:"max_uses" bson:"max_uses"`
	Used      int         `json:"used" bson:"used"`
	Status    TokenStatus `json:"status" bson:"status"`
	CreatedBy string      `json:"created_by" bson:"created_by"`
	CreatedAt time.Time   `json:"created_at" bson:"created_at"`
	LastUse   *time.Time  `json:"last_use,omitempty" bson:"last_use,omitempty"`
}

// State classifies the token from a durable snapshot. A nil token is unknown.
func (t *Token) State() TokenState {
	if t == nil {
		return TokenUnknown
	}
	if t.Status != TokenActive {
		return TokenStateOff
	}
	if t.Used >= t.MaxUses {
		return TokenExhausted
	}
	return TokenUsable
}

// Snapshot returns the cacheable view of the token.
func (t *Token) Snapshot() *TokenSnapshot {
	return &TokenSnapshot{
		Used:    t.Used,
		MaxUses: t.MaxUses,
		Status:  t.Status,
	}
}

// TokenSnapshot is the derived copy kept in the cache under "token:<id>".
// It may be stale by up to its TTL and must never authorize consumption
// of a use; disabled and exhausted are monotone facts, so a snapshot
// reporting either may safely deny.
type TokenSnapshot struct {
	Used    int         `json:"used"`
	MaxUses int         `json:"max_uses"`
	Status  TokenStatus `json:"status"`
}

// State mirrors Token.State for the cached view.
func (s *TokenSnapshot) State() TokenState {
	if s == nil {
		return TokenUnknown
	}
	if s.Status != TokenActive {
		return TokenStateOff
	}
	if s.Used >= s.MaxUses {
		return TokenExhausted
	}
	return TokenUsable
}
