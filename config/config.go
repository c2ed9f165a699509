package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables, e.g. IMAPFETCH_PASSWORD.
const EnvPrefix = "IMAPFETCH"

// Config captures all options of a list or backup run.
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	TLS                bool
	StartTLS           bool
	InsecureSkipVerify bool

	Path           string
	Compress       bool
	Mailboxes      []string
	IncludeMailbox []string
	ExcludeMailbox []string
	FailFast       bool
	NoProgress     bool

	LogLevel string
	LogDir   string
}

// RegisterGlobalFlags attaches the flags shared by every subcommand.
func RegisterGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "Optional config file (yaml, toml or json)")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Also write logs to a timestamped file in this directory")
}

// RegisterConnectionFlags attaches the IMAP connection flags.
// The user may also come from the environment or a config file, so it is
// validated in LoadConfig rather than marked required.
func RegisterConnectionFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("user", "", "IMAP username")
	flags.String("password", "", "IMAP password (prompted when omitted, or IMAPFETCH_PASSWORD)")
	flags.Bool("tls", false, "Use implicit TLS (port 993)")
	flags.Bool("starttls", false, "Upgrade a plain connection with STARTTLS")
	flags.Int("port", 0, "IMAP server port (default 993 with --tls, 143 otherwise)")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
}

// RegisterBackupFlags attaches the flags only the backup command knows.
func RegisterBackupFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("path", "", "Output directory (default: current working directory)")
	flags.Bool("compress", false, "Compress mbox files (not supported, archives are written uncompressed)")
	flags.StringArray("mailboxes", nil, "Only back up this mailbox (can be repeated)")
	flags.StringArray("include-mailbox", nil, "Regex allow-list applied to listed mailbox names (mutually exclusive with --exclude-mailbox)")
	flags.StringArray("exclude-mailbox", nil, "Regex block-list applied to listed mailbox names (mutually exclusive with --include-mailbox)")
	flags.Bool("fail-fast", false, "Stop at the first mailbox that fails instead of continuing")
	flags.Bool("no-progress", false, "Do not draw progress bars")
}

// LoadConfig merges flags, IMAPFETCH_* environment variables and the
// optional config file, in that order of precedence, into a validated Config.
// The host is the first positional argument.
func LoadConfig(cmd *cobra.Command, args []string) (Config, error) {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return Config{}, fmt.Errorf("bind flags: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := Config{
		Port:               v.GetInt("port"),
		User:               v.GetString("user"),
		Password:           v.GetString("password"),
		TLS:                v.GetBool("tls"),
		StartTLS:           v.GetBool("starttls"),
		InsecureSkipVerify: v.GetBool("insecure-skip-verify"),
		Path:               v.GetString("path"),
		Compress:           v.GetBool("compress"),
		Mailboxes:          v.GetStringSlice("mailboxes"),
		IncludeMailbox:     v.GetStringSlice("include-mailbox"),
		ExcludeMailbox:     v.GetStringSlice("exclude-mailbox"),
		FailFast:           v.GetBool("fail-fast"),
		NoProgress:         v.GetBool("no-progress"),
		LogLevel:           normalizeLevel(v.GetString("log-level")),
		LogDir:             v.GetString("log-dir"),
	}
	if len(args) > 0 {
		cfg.Host = strings.TrimSpace(args[0])
	} else {
		cfg.Host = v.GetString("host")
	}
	if cfg.Path != "" {
		cfg.Path = filepath.Clean(cfg.Path)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func normalizeLevel(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	switch level {
	case "":
		return "info"
	case "warning":
		return "warn"
	}
	return level
}

func validateConfig(cfg Config) error {
	if cfg.Host == "" {
		return fmt.Errorf("IMAP host is required")
	}
	if cfg.User == "" {
		return fmt.Errorf("--user is required")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("--port must be between 1 and 65535")
	}
	if cfg.TLS && cfg.StartTLS {
		return fmt.Errorf("--tls and --starttls are mutually exclusive")
	}
	if len(cfg.IncludeMailbox) > 0 && len(cfg.ExcludeMailbox) > 0 {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}
