package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// LoadWithFile loads configuration from an optional YAML file, then
// overrides with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_PORT, METADATA_DB_URI, etc.)
//  2. YAML config file (~/.config/engrama/config.yaml)
//  3. Hardcoded defaults
//
// Environment variable names (with an optional ENGRAMA_ prefix) are
// lowercased and mapped to section.field_name keys by envTransformer:
// the two-word sections metadata_db, vector_store and rate_limit are
// matched explicitly (RATE_LIMIT_PER_MINUTE -> rate_limit.per_minute),
// and every other name is split on its first underscore.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "engrama", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformer), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envTransformer maps ENGRAMA_SECTION_FIELD_NAME style variables to
// koanf's section.field_name dotted keys. Splitting only on the first
// underscore would break two-word sections like RATE_LIMIT, so the
// known section prefixes are matched explicitly before falling back to
// the generic single-split behavior.
func envTransformer(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, "ENGRAMA_"))

	knownSections := []string{"metadata_db", "vector_store", "rate_limit"}
	for _, section := range knownSections {
		prefix := section + "_"
		if strings.HasPrefix(lower, prefix) {
			return section + "." + strings.TrimPrefix(lower, prefix)
		}
	}

	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// EnsureConfigDir creates the engrama config directory if it doesn't exist.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	configDir := filepath.Join(home, ".config", "engrama")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}
	return nil
}

// validateConfigPath checks that path is in an allowed directory, even if
// the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "engrama"),
		"/etc/engrama",
	}

	for _, dir := range allowedDirs {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/engrama/ or /etc/engrama/")
}

// validateConfigFileProperties checks file permissions and size using an
// already-opened file descriptor's FileInfo, to avoid a TOCTOU race
// between validation and read.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults fills in zero-valued fields with production-sane defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.VectorStore.CollectionName == "" {
		cfg.VectorStore.CollectionName = "engrama_memories"
	}
	if cfg.VectorStore.VectorSize == 0 {
		cfg.VectorStore.VectorSize = 1024
	}
	if cfg.Embedding.Endpoint == "" {
		cfg.Embedding.Endpoint = "http://localhost:8080"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "BAAI/bge-m3"
	}
	if cfg.CORSOrigins == "" {
		cfg.CORSOrigins = "*"
	}
	if cfg.Limits.MaxContentLength == 0 {
		cfg.Limits.MaxContentLength = 10000
	}
	if cfg.Limits.MaxNameLength == 0 {
		cfg.Limits.MaxNameLength = 100
	}
	if cfg.Limits.MaxTagsCount == 0 {
		cfg.Limits.MaxTagsCount = 20
	}
}
