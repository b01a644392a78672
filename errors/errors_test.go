package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"malformed phone", ErrInvalidPhone, KindValidation},
		{"duplicate registration", ErrDuplicatePhone, KindConflict},
		{"self chat", ErrSelfChat, KindConflict},
		{"unknown partner", ErrPartnerUnknown, KindNotFound},
		{"offline partner", ErrPartnerOffline, KindNotFound},
		{"not in room", ErrNotInRoom, KindState},
		{"wrapped persistence", fmt.Errorf("%w: disk full", ErrPersistence), KindPersistence},
		{"foreign error", fmt.Errorf("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestReason(t *testing.T) {
	req := require.New(t)

	req.Equal("Phone number already registered", Reason(ErrDuplicatePhone))
	req.Equal("User is not online", Reason(fmt.Errorf("lookup: %w", ErrPartnerOffline)))
	req.Equal("Message archive is disabled", Reason(ErrArchiveDisabled))
	req.Equal("Internal error", Reason(fmt.Errorf("boom")))
}
