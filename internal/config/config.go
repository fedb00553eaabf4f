package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main Scout configuration
type Config struct {
	// Server holds the HTTP gateway settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// AI holds model provider credentials
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Agent controls the research loop
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Sessions controls the in-memory conversation store
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`

	// Search configures the web search capability
	Search SearchConfig `json:"search" mapstructure:"search"`

	// Fetch configures the page fetch capability
	Fetch FetchConfig `json:"fetch" mapstructure:"fetch"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds gateway server configuration
type ServerConfig struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Profiles []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// AIProfile represents an AI provider credential
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // openai, anthropic
	APIKey   string `json:"api_key" mapstructure:"api_key"`
}

// AgentConfig controls the iterative research loop
type AgentConfig struct {
	Model         string  `json:"model" mapstructure:"model"`
	FinalModel    string  `json:"final_model" mapstructure:"final_model"`
	MaxIterations int     `json:"max_iterations" mapstructure:"max_iterations"`
	Temperature   float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens     int     `json:"max_tokens" mapstructure:"max_tokens"`
	SystemPrompt  string  `json:"system_prompt" mapstructure:"system_prompt"`
}

// SessionsConfig bounds the in-memory session store
type SessionsConfig struct {
	MaxMessages   int    `json:"max_messages" mapstructure:"max_messages"`
	MaxSessions   int    `json:"max_sessions" mapstructure:"max_sessions"`
	TTLMinutes    int    `json:"ttl_minutes" mapstructure:"ttl_minutes"`
	SweepMinutes  int    `json:"sweep_minutes" mapstructure:"sweep_minutes"`
	ArchivePath   string `json:"archive_path" mapstructure:"archive_path"`
	ArchiveOnDrop bool   `json:"archive_on_drop" mapstructure:"archive_on_drop"`
}

// SearchConfig configures the web search collaborator
type SearchConfig struct {
	APIKey         string `json:"api_key" mapstructure:"api_key"`
	Endpoint       string `json:"endpoint" mapstructure:"endpoint"`
	MaxResults     int    `json:"max_results" mapstructure:"max_results"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// FetchConfig configures the page fetch collaborator
type FetchConfig struct {
	MaxChars       int `json:"max_chars" mapstructure:"max_chars"`
	TimeoutSeconds int `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file" mapstructure:"file"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		AI: AIConfig{
			Profiles: []AIProfile{},
		},
		Agent: AgentConfig{
			Model:         "gpt-4o-mini",
			FinalModel:    "gpt-4o",
			MaxIterations: 5,
			Temperature:   0.7,
			MaxTokens:     4096,
		},
		Sessions: SessionsConfig{
			MaxMessages:   50,
			MaxSessions:   1000,
			TTLMinutes:    30,
			SweepMinutes:  5,
			ArchiveOnDrop: false,
		},
		Search: SearchConfig{
			Endpoint:       "https://api.tavily.com/search",
			MaxResults:     5,
			TimeoutSeconds: 15,
		},
		Fetch: FetchConfig{
			MaxChars:       8000,
			TimeoutSeconds: 15,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid. It fails fast on missing
// credentials so no run ever starts with an unusable collaborator.
func (c *Config) Validate() error {
	if len(c.AI.Profiles) == 0 {
		return fmt.Errorf("no AI credentials configured: at least one AI profile is required")
	}

	for i, profile := range c.AI.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("AI profile %d: ID is required", i)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("AI profile %s: api_key is required", profile.ID)
		}
		if profile.Provider != "openai" && profile.Provider != "anthropic" {
			return fmt.Errorf("AI profile %s: invalid provider %s (must be: openai, anthropic)", profile.ID, profile.Provider)
		}
	}

	if c.Search.APIKey == "" {
		return fmt.Errorf("search api_key is required")
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search max_results must be positive")
	}

	if c.Agent.Model == "" {
		return fmt.Errorf("agent model is required")
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent max_iterations must be positive")
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 1 {
		return fmt.Errorf("agent temperature must be between 0 and 1")
	}

	if c.Sessions.MaxMessages <= 0 {
		return fmt.Errorf("sessions max_messages must be positive")
	}
	if c.Sessions.MaxSessions <= 0 {
		return fmt.Errorf("sessions max_sessions must be positive")
	}
	if c.Sessions.TTLMinutes <= 0 {
		return fmt.Errorf("sessions ttl_minutes must be positive")
	}
	if c.Sessions.ArchiveOnDrop && c.Sessions.ArchivePath == "" {
		return fmt.Errorf("sessions archive_path is required when archive_on_drop is enabled")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	return nil
}
