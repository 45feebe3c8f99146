package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates the settings for the whole service.
type Config struct {
	Server  ServerConfig
	Auth    AuthConfig
	LLM     LLMConfig
	History HistoryConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	llm, err := loadLLMConfig()
	if err != nil {
		return nil, err
	}

	history, err := loadHistoryConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Auth: auth, LLM: llm, History: history}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "3000"
	}

	if strings.Contains(port, ":") {
		// Accept ":3000" or "127.0.0.1:3000" verbatim.
		return ServerConfig{Addr: port}, nil
	}

	if _, err := strconv.Atoi(port); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid PORT value %q: %w", port, err)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AuthConfig describes bearer token issuance.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

func loadAuthConfig() (AuthConfig, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return AuthConfig{}, fmt.Errorf("JWT_SECRET is required")
	}

	ttl := 24 * time.Hour
	if override, err := parseOptionalIntEnv("JWT_TTL_HOURS"); err != nil {
		return AuthConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return AuthConfig{}, fmt.Errorf("JWT_TTL_HOURS must be positive")
		}
		ttl = time.Duration(*override) * time.Hour
	}

	return AuthConfig{JWTSecret: secret, TokenTTL: ttl}, nil
}

// LLMConfig describes the inference provider and the fixed generation
// parameters applied to every request.
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	TopP        float32
	MaxTokens   int
	Timeout     time.Duration
}

// Enabled reports whether the required provider settings are present.
func (c LLMConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

func loadLLMConfig() (LLMConfig, error) {
	temperature := float32(0.5)
	if override, err := parseOptionalFloat32Env("LLM_TEMPERATURE"); err != nil {
		return LLMConfig{}, err
	} else if override != nil {
		temperature = *override
	}

	topP := float32(0.7)
	if override, err := parseOptionalFloat32Env("LLM_TOP_P"); err != nil {
		return LLMConfig{}, err
	} else if override != nil {
		topP = *override
	}

	maxTokens := 1024
	if override, err := parseOptionalIntEnv("LLM_MAX_TOKENS"); err != nil {
		return LLMConfig{}, err
	} else if override != nil {
		maxTokens = *override
	}

	timeout := 120 * time.Second
	if override, err := parseOptionalIntEnv("LLM_TIMEOUT_SECONDS"); err != nil {
		return LLMConfig{}, err
	} else if override != nil {
		timeout = time.Duration(*override) * time.Second
	}

	return LLMConfig{
		APIKey:      strings.TrimSpace(os.Getenv("HF_API_KEY")),
		BaseURL:     getEnvOrDefault("HF_BASE_URL", "https://router.huggingface.co/v1"),
		Model:       getEnvOrDefault("LLM_MODEL", "Qwen/Qwen2.5-72B-Instruct"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Timeout:     timeout,
	}, nil
}

// HistoryConfig describes transcript seeding and retention.
type HistoryConfig struct {
	SystemPrompt string
	MaxTurns     int
}

func loadHistoryConfig() (HistoryConfig, error) {
	// Zero keeps transcripts unbounded.
	maxTurns := 0
	if override, err := parseOptionalIntEnv("HISTORY_MAX_TURNS"); err != nil {
		return HistoryConfig{}, err
	} else if override != nil {
		maxTurns = *override
	}

	return HistoryConfig{
		SystemPrompt: getEnvOrDefault("SYSTEM_PROMPT", defaultSystemPrompt),
		MaxTurns:     maxTurns,
	}, nil
}

const defaultSystemPrompt = "You are a helpful assistant. Answer clearly and concisely, " +
	"and stay consistent with the earlier conversation."

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
