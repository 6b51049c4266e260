// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package config builds the runtime configuration from CLI flags,
// environment variables and an optional TOML file, in that order of
// precedence.
package config

import (
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Crypto    CryptoConfig
	StepUp    StepUpConfig
	TwoFactor TwoFactorConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	MaxBodySize int // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

// CryptoConfig carries the key material for secret storage. SecretKey is
// a 32-byte hex string and has no default: the server refuses to start
// without one.
type CryptoConfig struct {
	SecretKey string
}

type StepUpConfig struct { //nolint:govet // fieldalignment not critical for config structs
	ChallengeTTL     time.Duration
	LockoutThreshold int64
	LockoutDuration  time.Duration
	ProofMaxAge      time.Duration
}

type TwoFactorConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Issuer            string
	RequireAdmin      bool
	RecoveryCodeCount int
}

type RateLimitConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Window time.Duration
	Max    int
	Block  time.Duration
}

func NewFromCLI(cmd *cli.Command) *Config {
	return &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		Crypto: CryptoConfig{
			SecretKey: cmd.String("secret-key"),
		},
		StepUp: StepUpConfig{
			ChallengeTTL:     time.Duration(cmd.Int("challenge-ttl")) * time.Second,
			LockoutThreshold: int64(cmd.Int("lockout-threshold")),
			LockoutDuration:  time.Duration(cmd.Int("lockout-duration")) * time.Second,
			ProofMaxAge:      time.Duration(cmd.Int("proof-max-age")) * time.Second,
		},
		TwoFactor: TwoFactorConfig{
			Issuer:            cmd.String("totp-issuer"),
			RequireAdmin:      cmd.Bool("require-admin-2fa"),
			RecoveryCodeCount: int(cmd.Int("recovery-code-count")),
		},
		RateLimit: RateLimitConfig{
			Window: time.Duration(cmd.Int("ratelimit-window")) * time.Second,
			Max:    int(cmd.Int("ratelimit-max")),
			Block:  time.Duration(cmd.Int("ratelimit-block")) * time.Second,
		},
	}
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/stepup.db",
			Usage:   "Database DSN",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		&cli.StringFlag{
			Name:    "secret-key",
			Usage:   "Key for TOTP secret encryption (32-byte hex)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SECRET_KEY"), toml.TOML("crypto.secret_key", configFile)),
		},
		&cli.IntFlag{
			Name:    "challenge-ttl",
			Value:   600,
			Usage:   "Step-up challenge lifetime in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("CHALLENGE_TTL"), toml.TOML("stepup.challenge_ttl", configFile)),
		},
		&cli.IntFlag{
			Name:    "lockout-threshold",
			Value:   5,
			Usage:   "Failed attempts before a challenge locks",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOCKOUT_THRESHOLD"), toml.TOML("stepup.lockout_threshold", configFile)),
		},
		&cli.IntFlag{
			Name:    "lockout-duration",
			Value:   300,
			Usage:   "Challenge lock duration in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOCKOUT_DURATION"), toml.TOML("stepup.lockout_duration", configFile)),
		},
		&cli.IntFlag{
			Name:    "proof-max-age",
			Value:   600,
			Usage:   "Maximum age of a verified proof in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PROOF_MAX_AGE"), toml.TOML("stepup.proof_max_age", configFile)),
		},
		&cli.StringFlag{
			Name:    "totp-issuer",
			Value:   "Habitloop",
			Usage:   "Issuer shown in authenticator apps",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TOTP_ISSUER"), toml.TOML("twofactor.issuer", configFile)),
		},
		&cli.BoolFlag{
			Name:    "require-admin-2fa",
			Value:   true,
			Usage:   "Require two-factor for admin step-up actions",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REQUIRE_ADMIN_2FA"), toml.TOML("twofactor.require_admin", configFile)),
		},
		&cli.IntFlag{
			Name:    "recovery-code-count",
			Value:   10,
			Usage:   "Recovery codes issued per batch",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RECOVERY_CODE_COUNT"), toml.TOML("twofactor.recovery_code_count", configFile)),
		},
		&cli.IntFlag{
			Name:    "ratelimit-window",
			Value:   60,
			Usage:   "Rate limit window in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RATELIMIT_WINDOW"), toml.TOML("ratelimit.window", configFile)),
		},
		&cli.IntFlag{
			Name:    "ratelimit-max",
			Value:   10,
			Usage:   "Requests allowed per window",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RATELIMIT_MAX"), toml.TOML("ratelimit.max", configFile)),
		},
		&cli.IntFlag{
			Name:    "ratelimit-block",
			Value:   300,
			Usage:   "Cooldown in seconds once the limit is exceeded",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RATELIMIT_BLOCK"), toml.TOML("ratelimit.block", configFile)),
		},
	}
}
