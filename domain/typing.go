package domain

import "time"

// TypingState is one live typing signal. An absent entry means "not typing".
type TypingState struct {
	IdentityKey string
	DisplayName string
	Scope       Scope
	ExpiresAt   time.Time
}

func (t TypingState) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
