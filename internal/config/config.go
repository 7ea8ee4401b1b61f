package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// DefaultInferencePrompt is filled with the allowed schemata, the evidence
// kind and the evidence text, in that order.
const DefaultInferencePrompt = `You are an information extraction system.
Extract FollowTheMoney entities from the input text.

Allowed schemata: %s
Return ONLY a JSON array. Each item must be an object with keys:
- schema: one of the allowed schemata
- properties: an object of FtM properties for that schema
- confidence: number 0..1
- evidence: short quote from the input (string)

Guidance:
- Person: include name; if possible also firstName/lastName.
- Address: prefer full.
- Event: use name, startDate (ISO), location (string), involved (list of names).

Input kind: %s
Input text:
%s
`

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type InferenceConfig struct {
	MaxChars int      `toml:"max_chars"`
	Prompt   string   `toml:"prompt"`
	Schemata []string `toml:"schemata"`
}

type DedupConfig struct {
	Schemata      []string `toml:"schemata"`
	SpoolDir      string   `toml:"spool_dir"`
	ProgressEvery int      `toml:"progress_every"`
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// ServerConfig controls the HTTP surface. Request paths are resolved
// against Root and may not leave it; an empty Root means the working
// directory.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	Root string `toml:"root"`
}

type Config struct {
	LLM       LLMConfig       `toml:"llm"`
	Memgraph  MemgraphConfig  `toml:"memgraph"`
	Inference InferenceConfig `toml:"inference"`
	Dedup     DedupConfig     `toml:"dedup"`
	Logging   LoggingConfig   `toml:"logging"`
	Server    ServerConfig    `toml:"server"`
}

// Default returns a configuration that runs against a local Ollama.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "ollama",
			Model:    "llava",
			BaseURL:  "http://localhost:11434",
		},
		Memgraph: MemgraphConfig{
			URI: "bolt://localhost:7687",
		},
		Inference: InferenceConfig{
			MaxChars: 8000,
			Prompt:   DefaultInferencePrompt,
		},
		Dedup: DedupConfig{
			ProgressEvery: 10000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
	}
}

// Load reads a TOML file over the defaults. Keys absent from the file keep
// their default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when it is set, and the defaults otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("MEMGRAPH_URI"); v != "" {
		c.Memgraph.URI = v
	}
	if v := os.Getenv("MEMGRAPH_USER"); v != "" {
		c.Memgraph.User = v
	}
	if v := os.Getenv("MEMGRAPH_PASSWORD"); v != "" {
		c.Memgraph.Password = v
	}
	if v := os.Getenv("FTM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FTM_SERVER_ROOT"); v != "" {
		c.Server.Root = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

func (c *Config) Validate() error {
	if c.Inference.MaxChars <= 0 {
		return fmt.Errorf("inference.max_chars must be positive, got %d", c.Inference.MaxChars)
	}
	if c.Dedup.ProgressEvery < 0 {
		return fmt.Errorf("dedup.progress_every must not be negative, got %d", c.Dedup.ProgressEvery)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Inference.Prompt != "" {
		if err := checkPrompt(c.Inference.Prompt); err != nil {
			return fmt.Errorf("inference.prompt: %w", err)
		}
	}
	return nil
}

// checkPrompt accepts templates with exactly three %s verbs. %% is the only
// other directive allowed.
func checkPrompt(prompt string) error {
	verbs := 0
	for i := 0; i < len(prompt); i++ {
		if prompt[i] != '%' {
			continue
		}
		if i+1 == len(prompt) {
			return fmt.Errorf("trailing %%")
		}
		i++
		switch prompt[i] {
		case '%':
		case 's':
			verbs++
		default:
			return fmt.Errorf("unsupported directive %%%c at offset %d", prompt[i], i-1)
		}
	}
	if verbs != 3 {
		return fmt.Errorf("want 3 %%s placeholders (schemata, kind, text), got %d", verbs)
	}
	return nil
}
