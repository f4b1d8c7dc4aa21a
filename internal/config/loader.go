package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// sections are the top-level config keys, used to map environment variable
// prefixes onto nested koanf paths.
var sections = []string{
	"vector_store", // must come before shorter prefixes
	"server",
	"log",
	"embedding",
	"generation",
	"rag",
	"upload",
}

// Load loads configuration from an optional YAML file, then overrides with
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_PORT, VECTOR_STORE_PROVIDER, ...)
//  2. YAML config file (path argument; skipped when empty or missing)
//  3. Defaults
//
// Environment variables are uppercased with underscore separators and map to
// nested keys:
//
//	SERVER_HTTP_PORT       -> server.http_port
//	VECTOR_STORE_PROVIDER  -> vector_store.provider
//	EMBEDDING_API_KEY      -> embedding.api_key
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if info, err := os.Stat(configPath); err == nil {
			if info.Size() > maxConfigFileSize {
				return nil, fmt.Errorf("config file %s exceeds %d bytes", configPath, maxConfigFileSize)
			}
			content, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// transformEnvKey maps an environment variable name to a nested config key.
// Unknown prefixes return "" and are ignored.
func transformEnvKey(s string) string {
	key := strings.ToLower(s)
	for _, section := range sections {
		prefix := section + "_"
		if strings.HasPrefix(key, prefix) && len(key) > len(prefix) {
			return section + "." + key[len(prefix):]
		}
	}
	return ""
}
