package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lmagent/internal/cost"
	"lmagent/internal/tool"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the complete lmagent configuration document.
type Config struct {
	Name             string                `yaml:"name"`
	SystemPromptPath string                `yaml:"system_prompt_path"`
	LLM              LLMConfig             `yaml:"llm"`
	Limits           RunLimits             `yaml:"limits"`
	Tools            ToolsConfig           `yaml:"tools"`
	Database         DatabaseConfig        `yaml:"database"`
	Pricing          map[string]cost.Price `yaml:"pricing"`
	Hooks            HooksConfig           `yaml:"hooks"`
	MCP              MCPConfig             `yaml:"mcp"`
	Telemetry        TelemetryConfig       `yaml:"telemetry"`
	Logging          LoggingConfig         `yaml:"logging"`
}

// LLMConfig selects the collaborator and its sampling settings.
type LLMConfig struct {
	Provider    string      `yaml:"provider"`
	Model       string      `yaml:"model"`
	Temperature float32     `yaml:"temperature"`
	MaxTokens   int         `yaml:"max_tokens"`
	BaseURL     string      `yaml:"base_url"`
	APIKey      string      `yaml:"api_key"`
	Fallback    []LLMTarget `yaml:"fallback"`
}

// LLMTarget is a fallback provider tried when the primary fails.
type LLMTarget struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
}

// RunLimits bound a single run.
type RunLimits struct {
	MaxIterations  int     `yaml:"max_iterations"`
	MaxCost        float64 `yaml:"max_cost"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

type ToolsConfig struct {
	// FromRegistry is the allowlist. Empty means every registered tool.
	FromRegistry      []string   `yaml:"from_registry"`
	Limits            ToolLimits `yaml:"limits"`
	ShellDenyPatterns []string   `yaml:"shell_deny_patterns"`
	SQLDenyPatterns   []string   `yaml:"sql_deny_patterns"`
	BlockedHosts      []string   `yaml:"blocked_hosts"`
	ProtectedBranches []string   `yaml:"protected_branches"`
}

// ToolLimits mirrors tool.Limits in YAML units. Zero values keep the defaults.
type ToolLimits struct {
	MaxOutputChars        int   `yaml:"max_output_chars"`
	MaxFileBytes          int64 `yaml:"max_file_bytes"`
	MaxReadChars          int   `yaml:"max_read_chars"`
	MaxHTTPResponseBytes  int   `yaml:"max_http_response_bytes"`
	MaxSearchResults      int   `yaml:"max_search_results"`
	MaxRows               int   `yaml:"max_rows"`
	MaxAffectedRows       int64 `yaml:"max_affected_rows"`
	ObservationChars      int   `yaml:"observation_chars"`
	CommandTimeoutSeconds int   `yaml:"command_timeout_seconds"`
	HTTPTimeoutSeconds    int   `yaml:"http_timeout_seconds"`
	HTTPRequestsPerMinute int   `yaml:"http_requests_per_minute"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// HooksConfig contains hook-related settings
type HooksConfig struct {
	// Confirm enables operator confirmation before ConfirmTools run.
	Confirm      bool     `yaml:"confirm"`
	ConfirmTools []string `yaml:"confirm_tools"`
	Audit        bool     `yaml:"audit"`
}

// MCPConfig contains MCP-specific settings
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig defines a single MCP server
type MCPServerConfig struct {
	Name      string            `yaml:"name"`      // Unique server identifier
	Transport string            `yaml:"transport"` // "stdio" (only supported initially)
	Command   string            `yaml:"command"`   // Executable to run
	Args      []string          `yaml:"args"`      // Command arguments
	Env       map[string]string `yaml:"env"`       // Environment variables with ${VAR} support
	Disabled  bool              `yaml:"disabled"`  // Skip this server if true
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Protocol     string `yaml:"protocol"`
	Insecure     bool   `yaml:"insecure"`
	ServiceName  string `yaml:"service_name"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	DebugFile string `yaml:"debug_file"`
}

// Agent is the flattened view the runtime consumes.
type Agent struct {
	Name             string
	Model            string
	Provider         string
	Temperature      float32
	MaxTokens        int
	MaxIterations    int
	MaxCost          float64
	TimeoutSeconds   int
	ObservationChars int
	SystemPromptPath string
	Tools            []string
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Name: "lmagent",
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Limits: RunLimits{
			MaxIterations:  15,
			MaxCost:        2.00,
			TimeoutSeconds: 300,
		},
		Hooks: HooksConfig{Audit: true},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			Insecure:    true,
			ServiceName: "lmagent",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults, expands ${VAR}
// references and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load for an in-memory document.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	cfg.expand()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithDefaults loads config with fallback to default locations
// Checks: ./lmagent.yaml, ./configs/lmagent.yaml, ~/.config/lmagent/lmagent.yaml
func LoadWithDefaults() (*Config, error) {
	locations := []string{
		"./lmagent.yaml",
		"./configs/lmagent.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		locations = append(locations, filepath.Join(home, ".config", "lmagent", "lmagent.yaml"))
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return Load(loc)
		}
	}

	// No config found - defaults are valid on their own.
	return Default(), nil
}

func (c *Config) expand() {
	c.LLM.BaseURL = ExpandEnv(c.LLM.BaseURL)
	c.LLM.APIKey = ExpandEnv(c.LLM.APIKey)
	for i := range c.LLM.Fallback {
		c.LLM.Fallback[i].BaseURL = ExpandEnv(c.LLM.Fallback[i].BaseURL)
		c.LLM.Fallback[i].APIKey = ExpandEnv(c.LLM.Fallback[i].APIKey)
	}
	c.Database.DSN = ExpandEnv(c.Database.DSN)
	for i := range c.MCP.Servers {
		c.MCP.Servers[i].Env = ExpandEnvMap(c.MCP.Servers[i].Env)
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks config correctness
func (c *Config) Validate() error {
	if err := validProvider(c.LLM.Provider); err != nil {
		return err
	}
	for i, fb := range c.LLM.Fallback {
		if err := validProvider(fb.Provider); err != nil {
			return fmt.Errorf("fallback #%d: %w", i+1, err)
		}
	}
	if c.LLM.Model == "" {
		return invalid("llm.model is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return invalid("llm.temperature must be between 0 and 2, got %v", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens <= 0 {
		return invalid("llm.max_tokens must be positive")
	}
	if c.Limits.MaxIterations <= 0 {
		return invalid("limits.max_iterations must be positive")
	}
	if c.Limits.MaxCost <= 0 {
		return invalid("limits.max_cost must be positive")
	}
	if c.Limits.TimeoutSeconds < 0 {
		return invalid("limits.timeout_seconds cannot be negative")
	}

	if c.Database.DSN != "" {
		switch c.Database.Driver {
		case "sqlite", "pgx", "postgres":
		default:
			return invalid("unsupported database driver %q", c.Database.Driver)
		}
	}
	for name, p := range c.Pricing {
		if p.Input < 0 || p.Output < 0 {
			return invalid("pricing for %s cannot be negative", name)
		}
	}
	if c.Telemetry.OTLPEndpoint != "" && c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http" {
		return invalid("telemetry.protocol must be grpc or http, got %q", c.Telemetry.Protocol)
	}

	// Check for duplicate server names
	names := make(map[string]bool)
	for i, server := range c.MCP.Servers {
		if server.Name == "" {
			return invalid("server #%d: name cannot be empty", i+1)
		}
		if names[server.Name] {
			return invalid("duplicate server name: %s", server.Name)
		}
		names[server.Name] = true

		if err := server.Validate(); err != nil {
			return fmt.Errorf("%w: server %s: %v", ErrInvalid, server.Name, err)
		}
	}
	return nil
}

func validProvider(p string) error {
	switch p {
	case "openai", "anthropic":
		return nil
	}
	return invalid("unsupported llm provider %q", p)
}

// Validate checks a single server config
func (s *MCPServerConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	// Server names become tool name prefixes: ^[a-zA-Z0-9_-]+$
	for _, ch := range s.Name {
		if !((ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_' || ch == '-') {
			return fmt.Errorf("server name '%s' contains invalid character '%c' (only alphanumeric, underscore, and hyphen allowed)", s.Name, ch)
		}
	}

	if s.Transport == "" {
		return fmt.Errorf("transport is required")
	}
	if s.Transport != "stdio" {
		return fmt.Errorf("unsupported transport: %s (only 'stdio' is supported)", s.Transport)
	}
	if s.Command == "" {
		return fmt.Errorf("command is required")
	}
	return nil
}

// Agent flattens the run settings.
func (c *Config) Agent() Agent {
	return Agent{
		Name:             c.Name,
		Model:            c.LLM.Model,
		Provider:         c.LLM.Provider,
		Temperature:      c.LLM.Temperature,
		MaxTokens:        c.LLM.MaxTokens,
		MaxIterations:    c.Limits.MaxIterations,
		MaxCost:          c.Limits.MaxCost,
		TimeoutSeconds:   c.Limits.TimeoutSeconds,
		ObservationChars: c.ToolLimits().ObservationChars,
		SystemPromptPath: c.SystemPromptPath,
		Tools:            append([]string(nil), c.Tools.FromRegistry...),
	}
}

// ToolLimits overlays the configured limits on tool.DefaultLimits.
func (c *Config) ToolLimits() tool.Limits {
	l := tool.DefaultLimits()
	y := c.Tools.Limits

	setInt(&l.MaxOutputChars, y.MaxOutputChars)
	setInt(&l.MaxReadChars, y.MaxReadChars)
	setInt(&l.MaxHTTPResponseBytes, y.MaxHTTPResponseBytes)
	setInt(&l.MaxSearchResults, y.MaxSearchResults)
	setInt(&l.MaxRows, y.MaxRows)
	setInt(&l.ObservationChars, y.ObservationChars)
	setInt(&l.HTTPRequestsPerMinute, y.HTTPRequestsPerMinute)
	if y.MaxFileBytes > 0 {
		l.MaxFileBytes = y.MaxFileBytes
	}
	if y.MaxAffectedRows > 0 {
		l.MaxAffectedRows = y.MaxAffectedRows
	}
	if y.CommandTimeoutSeconds > 0 {
		l.CommandTimeout = time.Duration(y.CommandTimeoutSeconds) * time.Second
	}
	if y.HTTPTimeoutSeconds > 0 {
		l.HTTPTimeout = time.Duration(y.HTTPTimeoutSeconds) * time.Second
	}
	return l
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// Prices returns the default price table extended by the pricing block.
func (c *Config) Prices() cost.PriceTable {
	return cost.DefaultPrices().With(c.Pricing)
}
