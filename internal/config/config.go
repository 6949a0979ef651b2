package config

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FlexibleInt64Slice accepts both [123] and ["123"] in JSON and YAML.
type FlexibleInt64Slice []int64

func (f *FlexibleInt64Slice) UnmarshalJSON(data []byte) error {
	var ids []int64
	if err := json.Unmarshal(data, &ids); err == nil {
		*f = ids
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]int64, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case float64:
			result = append(result, int64(val))
		case string:
			id, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", val)
			}
			result = append(result, id)
		default:
			return fmt.Errorf("invalid user id %v", val)
		}
	}
	*f = result
	return nil
}

func (f *FlexibleInt64Slice) UnmarshalYAML(value *yaml.Node) error {
	var raw []interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	result := make([]int64, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case int:
			result = append(result, int64(val))
		case string:
			id, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", val)
			}
			result = append(result, id)
		default:
			return fmt.Errorf("invalid user id %v", val)
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the bot. A *Config handed out by Store
// is a snapshot and must be treated as read-only.
type Config struct {
	Telegram    TelegramConfig           `json:"telegram" yaml:"telegram"`
	Admins      FlexibleInt64Slice       `json:"admins" yaml:"admins"`
	Gags        []string                 `json:"gags" yaml:"gags"`     // phrases that start a gag command
	Ungags      []string                 `json:"ungags" yaml:"ungags"` // phrases that start an ungag command (checked first)
	Mumbles     []string                 `json:"mumbles" yaml:"mumbles"`
	Commands    map[string]CommandConfig `json:"commands,omitempty" yaml:"commands,omitempty"`
	ActionsPath string                   `json:"actions_path" yaml:"actions_path"` // relative paths resolve against the config dir
	Gag         GagConfig                `json:"gag" yaml:"gag"`
	ActionsList ActionsListConfig        `json:"actions_list" yaml:"actions_list"`
	Storage     StorageConfig            `json:"storage" yaml:"storage"`
	Telemetry   TelemetryConfig          `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
	Runtime     RuntimeConfig            `json:"runtime" yaml:"runtime"`
}

type TelegramConfig struct {
	Token string `json:"token" yaml:"token"`
	Proxy string `json:"proxy,omitempty" yaml:"proxy,omitempty"`
}

// CommandConfig describes a one-shot informational command (/rules etc).
type CommandConfig struct {
	Flag     string `json:"flag" yaml:"flag"`                 // cooldown key, shared by commands with the same flag
	Text     string `json:"text" yaml:"text"`                 // HTML
	Warning  string `json:"warning,omitempty" yaml:"warning,omitempty"`
	Cooldown int    `json:"cooldown,omitempty" yaml:"cooldown,omitempty"` // seconds, default 180
}

type GagConfig struct {
	AdminOnly bool `json:"admin_only,omitempty" yaml:"admin_only,omitempty"`
	MumbleTTL int  `json:"mumble_ttl,omitempty" yaml:"mumble_ttl,omitempty"` // seconds before a mumble is deleted (default 5)
}

type ActionsListConfig struct {
	PageSize int `json:"page_size,omitempty" yaml:"page_size,omitempty"` // default 20
	TTL      int `json:"ttl,omitempty" yaml:"ttl,omitempty"`             // seconds before a listing is deleted (default 180)
}

// StorageConfig enables the sqlite journal. Empty SQLitePath keeps all state in memory.
type StorageConfig struct {
	SQLitePath string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`
	PruneCron  string `json:"prune_cron,omitempty" yaml:"prune_cron,omitempty"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"` // e.g. "localhost:4317"
	Protocol    string `json:"protocol,omitempty" yaml:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool   `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	ServiceName string `json:"service_name,omitempty" yaml:"service_name,omitempty"`
}

type RuntimeConfig struct {
	MaxConcurrent     int `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty"`               // parallel update handlers (default 16)
	SendRatePerMinute int `json:"send_rate_per_minute,omitempty" yaml:"send_rate_per_minute,omitempty"` // per chat (default 20)
}

// DefaultCommandCooldown applies when a command omits cooldown.
const DefaultCommandCooldown = 180

// IsAdmin reports whether userID is listed in admins.
func (c *Config) IsAdmin(userID int64) bool {
	return slices.Contains(c.Admins, userID)
}

// Command returns the one-shot command registered under name (case-insensitive).
func (c *Config) Command(name string) (CommandConfig, bool) {
	cmd, ok := c.Commands[strings.ToLower(name)]
	if !ok {
		return CommandConfig{}, false
	}
	if cmd.Flag == "" {
		cmd.Flag = strings.ToLower(name)
	}
	if cmd.Cooldown <= 0 {
		cmd.Cooldown = DefaultCommandCooldown
	}
	return cmd, true
}

// MatchUngag reports whether text starts with an ungag phrase.
func (c *Config) MatchUngag(text string) bool {
	return hasAnyPrefix(text, c.Ungags)
}

// MatchGag reports whether text starts with a gag phrase.
func (c *Config) MatchGag(text string) bool {
	return hasAnyPrefix(text, c.Gags)
}

func hasAnyPrefix(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if p != "" && strings.HasPrefix(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
