package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config contains runtime configuration for triage-agent.
type Config struct {
	AgentName    string `yaml:"agent_name"`
	DBPath       string `yaml:"db_path"`
	LogLevel     string `yaml:"log_level"`
	KnowledgeDir string `yaml:"knowledge_dir"`

	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`

	EmbeddingProvider string `yaml:"embedding_provider"`
	EmbeddingModel    string `yaml:"embedding_model"`

	MaxActiveMemories    int     `yaml:"max_active_memories"`
	MaxContextLength     int     `yaml:"max_context_length"`
	ConsolidationTrigger float64 `yaml:"consolidation_trigger"`
	ImportanceThreshold  float64 `yaml:"importance_threshold"`
	MemoryContextCount   int     `yaml:"memory_context_count"`

	RetrievalK      int `yaml:"retrieval_k"`
	CategorizationK int `yaml:"categorization_k"`

	MaxQuestionsBeforeForcedTicket int `yaml:"max_questions_before_forced_ticket"`
}

// Default returns a Config populated with safe defaults.
func Default() Config {
	return Config{
		AgentName:         "triage-agent",
		DBPath:            filepath.Join(userHomeDir(), ".triage-agent", "memories.db"),
		LogLevel:          "info",
		KnowledgeDir:      "knowledge",
		Model:             "claude-sonnet-4-20250514",
		MaxTokens:         1024,
		EmbeddingProvider: "local",
		EmbeddingModel:    "text-embedding-3-small",

		MaxActiveMemories:    10,
		MaxContextLength:     4000,
		ConsolidationTrigger: 0.8,
		ImportanceThreshold:  5.0,
		MemoryContextCount:   5,

		RetrievalK:      3,
		CategorizationK: 10,

		MaxQuestionsBeforeForcedTicket: 5,
	}
}

// Load loads config from disk; if path does not exist, default config is returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks configuration sanity.
func (c *Config) Validate() error {
	if c.AgentName == "" {
		return errors.New("agent_name must not be empty")
	}
	if c.DBPath == "" {
		return errors.New("db_path must not be empty")
	}
	if c.Model == "" {
		return errors.New("model must not be empty")
	}
	if c.MaxTokens <= 0 {
		return errors.New("max_tokens must be > 0")
	}
	if c.EmbeddingProvider != "local" && c.EmbeddingProvider != "openai" {
		return fmt.Errorf("embedding_provider must be local or openai, got %q", c.EmbeddingProvider)
	}
	if c.MaxActiveMemories <= 0 {
		return errors.New("max_active_memories must be > 0")
	}
	if c.MaxContextLength <= 0 {
		return errors.New("max_context_length must be > 0")
	}
	if c.ConsolidationTrigger <= 0 || c.ConsolidationTrigger > 1 {
		return errors.New("consolidation_trigger must be in (0, 1]")
	}
	if c.ImportanceThreshold < 1 || c.ImportanceThreshold > 10 {
		return errors.New("importance_threshold must be in [1, 10]")
	}
	if c.MemoryContextCount <= 0 {
		return errors.New("memory_context_count must be > 0")
	}
	if c.RetrievalK <= 0 {
		return errors.New("retrieval_k must be > 0")
	}
	if c.CategorizationK <= 0 {
		return errors.New("categorization_k must be > 0")
	}
	if c.MaxQuestionsBeforeForcedTicket <= 0 {
		return errors.New("max_questions_before_forced_ticket must be > 0")
	}
	return nil
}

// EnsurePaths creates parent directories for config-managed paths.
func (c *Config) EnsurePaths() error {
	c.DBPath = ExpandPath(c.DBPath)
	c.KnowledgeDir = ExpandPath(c.KnowledgeDir)
	parent := filepath.Dir(c.DBPath)
	if parent == "." {
		return nil
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create db parent dir: %w", err)
	}
	return nil
}

// ExpandPath expands "~/" to the current user's home directory.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p == "~" {
		return userHomeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(userHomeDir(), p[2:])
	}
	return p
}

func userHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
