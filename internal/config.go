package internal

import (
	"fmt"
	"time"
)

type IdentityBackend string

const (
	IdentityFile   IdentityBackend = "file"
	IdentityBadger IdentityBackend = "badger"
)

type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=5000"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	HistoryLimit         int           `env:"HISTORY_LIMIT,default=100"`
	RoomHistoryLimit     int           `env:"ROOM_HISTORY_LIMIT,default=100"`
	TypingQuietPeriod    time.Duration `env:"TYPING_QUIET_PERIOD,default=2s"`
	TypingSweepInterval  time.Duration `env:"TYPING_SWEEP_INTERVAL,default=500ms"`
	CommandBufferSize    int           `env:"COMMAND_BUFFER_SIZE,default=256"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	ArchiveBufferSize    int           `env:"ARCHIVE_BUFFER_SIZE,default=256"`

	IdentityStore  string `env:"IDENTITY_STORE,default=file"`
	UsersFile      string `env:"USERS_FILE,default=users.json"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=data/badger"`

	ArchiveEnabled bool          `env:"ARCHIVE_ENABLED,default=false"`
	BlugeFilepath  string        `env:"BLUGE_FILEPATH,default=data/bluge"`
	SinkTimeout    time.Duration `env:"SINK_TIMEOUT,default=2s"`

	// CensoredWords is a directory of <lang>.txt word lists, empty disables moderation.
	CensoredWords   string `env:"CENSORED_WORDS"`
	CharReplacement string `env:"CHARACTER_REPLACEMENT,default=*"`

	AuthRateLimitRPM int     `env:"AUTH_RATE_LIMIT_RPM,default=20"`
	AuthRateBurst    int     `env:"AUTH_RATE_BURST,default=5"`
	EventsPerSecond  float64 `env:"EVENTS_PER_SECOND,default=20"`
	EventBurst       int     `env:"EVENT_BURST,default=40"`

	MaxContentLength int           `env:"MAX_CONTENT_LENGTH,default=2000"`
	RestartInterval  time.Duration `env:"RESTART_INTERVAL,default=1s"`
	ClientOrigin     string        `env:"CLIENT_ORIGIN,default=*"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	// TrustProxy reads the client address from forwarding headers.
	TrustProxy bool `env:"TRUST_PROXY,default=false"`
}

// Address is the listen address of the HTTP server.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Backend validates IDENTITY_STORE.
func (c Config) Backend() (IdentityBackend, error) {
	switch b := IdentityBackend(c.IdentityStore); b {
	case IdentityFile, IdentityBadger:
		return b, nil
	default:
		return "", fmt.Errorf("IDENTITY_STORE must be %q or %q, got %q", IdentityFile, IdentityBadger, c.IdentityStore)
	}
}

// NeedsBadger reports whether any component stores into BadgerDB.
func (c Config) NeedsBadger() bool {
	return c.IdentityStore == string(IdentityBadger) || c.ArchiveEnabled
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
