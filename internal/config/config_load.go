package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adhocore/gronx"
	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gags:        []string{"кляп"},
		Ungags:      []string{"снять кляп", "убрать кляп"},
		Mumbles:     []string{"ммм-мм!", "мммф...", "*неразборчивое мычание*"},
		ActionsPath: "actions.yaml",
		Gag: GagConfig{
			MumbleTTL: 5,
		},
		ActionsList: ActionsListConfig{
			PageSize: 20,
			TTL:      180,
		},
		Storage: StorageConfig{
			PruneCron: "*/30 * * * *",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "gagbot",
		},
		Runtime: RuntimeConfig{
			MaxConcurrent:     16,
			SendRatePerMinute: 20,
		},
	}
}

// Load reads config from a YAML or JSON5 file (chosen by extension), then
// overlays env vars. A missing file yields defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json5.Unmarshal(data, cfg)
	}
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("GAGBOT_TELEGRAM_TOKEN", &c.Telegram.Token)
	envStr("GAGBOT_TELEGRAM_PROXY", &c.Telegram.Proxy)
	envStr("GAGBOT_ACTIONS_PATH", &c.ActionsPath)
	envStr("GAGBOT_SQLITE_PATH", &c.Storage.SQLitePath)

	// Admin IDs from env (comma-separated), appended to the file list
	if v := os.Getenv("GAGBOT_ADMINS"); v != "" {
		for _, part := range strings.Split(v, ",") {
			if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
				c.Admins = append(c.Admins, id)
			}
		}
	}

	// Telemetry
	envStr("GAGBOT_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("GAGBOT_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	if v := os.Getenv("GAGBOT_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
}

// normalize lower-cases trigger phrases and command names, and resolves the
// actions path against the config file directory.
func (c *Config) normalize(path string) {
	lowerAll := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	c.Gags = lowerAll(c.Gags)
	c.Ungags = lowerAll(c.Ungags)

	if len(c.Commands) > 0 {
		cmds := make(map[string]CommandConfig, len(c.Commands))
		for name, cmd := range c.Commands {
			cmds[strings.ToLower(strings.TrimPrefix(name, "/"))] = cmd
		}
		c.Commands = cmds
	}

	if c.ActionsPath != "" && !filepath.IsAbs(c.ActionsPath) {
		c.ActionsPath = filepath.Join(filepath.Dir(path), c.ActionsPath)
	}
	c.Storage.SQLitePath = ExpandHome(c.Storage.SQLitePath)
}

// Validate checks invariants the handlers rely on.
func (c *Config) Validate() error {
	if len(c.Mumbles) == 0 {
		return fmt.Errorf("config: mumbles must not be empty")
	}
	if c.ActionsList.PageSize <= 0 {
		return fmt.Errorf("config: actions_list.page_size must be positive")
	}
	if c.Storage.PruneCron != "" && !gronx.IsValid(c.Storage.PruneCron) {
		return fmt.Errorf("config: invalid storage.prune_cron %q", c.Storage.PruneCron)
	}
	for name, cmd := range c.Commands {
		if cmd.Text == "" {
			return fmt.Errorf("config: command %q has no text", name)
		}
	}
	return nil
}

// Save writes the config as YAML or JSON depending on the path extension.
func Save(path string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
