package webhook

import (
	"os"
	"strings"
	"time"

	"github.com/docenthq/docent/internal/config"
)

const (
	// DefaultAddr is the loopback bind address used when nothing is configured.
	DefaultAddr = "127.0.0.1:8400"
	// DefaultMaxBodyBytes limits request payloads to 5 MB.
	DefaultMaxBodyBytes int64 = 5 << 20
	// DefaultReadTimeout guards hung clients.
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout bounds handler writes.
	DefaultWriteTimeout = 15 * time.Second
	// DefaultIdleTimeout bounds keep-alive connections.
	DefaultIdleTimeout = 60 * time.Second

	// AddrEnv overrides the bind address from the environment.
	AddrEnv = "DOCENT_HOOK_ADDR"
	// SecretEnv overrides the shared secret from the environment.
	SecretEnv = "DOCENT_HOOK_SECRET"
)

// Settings captures runtime configuration for the webhook receiver.
// An empty Secret disables signature verification.
type Settings struct {
	Addr         string
	Secret       string
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// SettingsFromConfig builds Settings from the project config and
// environment overrides.
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := Settings{
		Addr:         DefaultAddr,
		MaxBodyBytes: DefaultMaxBodyBytes,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		IdleTimeout:  DefaultIdleTimeout,
	}
	if cfg != nil {
		settings.Addr = cfg.ServeAddr()
		settings.Secret = strings.TrimSpace(cfg.Project.Watch.Secret)
	}
	settings.applyEnvOverrides()
	settings.normalize()
	return settings
}

func (s *Settings) applyEnvOverrides() {
	if s == nil {
		return
	}
	if addr := strings.TrimSpace(os.Getenv(AddrEnv)); addr != "" {
		s.Addr = addr
	}
	if secret := strings.TrimSpace(os.Getenv(SecretEnv)); secret != "" {
		s.Secret = secret
	}
}

func (s *Settings) normalize() {
	if s == nil {
		return
	}
	s.Addr = strings.TrimSpace(s.Addr)
	if s.Addr == "" {
		s.Addr = DefaultAddr
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
}

// URL returns the HTTP base URL for the receiver.
func (s Settings) URL() string {
	return "http://" + s.Addr
}
