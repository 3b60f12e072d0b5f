package clawmem

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads ~/.config/clawmem/index.yml, falling back to
// DefaultConfig when the file does not exist. Malformed YAML is
// surfaced as an error rather than silently ignored, since this file
// is operator-authored, not LLM output.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	path, err := defaultConfigPath()
	if err != nil {
		cfg.LoadEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg.LoadEnvOverrides()
		return cfg, nil
	}
	if err != nil {
		return Config{}, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	for i := range cfg.Collections {
		cfg.Collections[i].Path = expandHome(cfg.Collections[i].Path)
		if cfg.Collections[i].Pattern == "" {
			cfg.Collections[i].Pattern = "**/*.md"
		}
	}
	cfg.LoadEnvOverrides()
	return cfg, nil
}

// LoadConfigFrom reads config from an explicit path instead of the
// default location, applying the same home-expansion and env-override
// steps as LoadConfig.
func LoadConfigFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	for i := range cfg.Collections {
		cfg.Collections[i].Path = expandHome(cfg.Collections[i].Path)
		if cfg.Collections[i].Pattern == "" {
			cfg.Collections[i].Pattern = "**/*.md"
		}
	}
	cfg.LoadEnvOverrides()
	return cfg, nil
}

func defaultConfigPath() (string, error) {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "clawmem", "index.yml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "clawmem", "index.yml"), nil
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
