package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel          = "gpt-3.5-turbo"
	DefaultMaxTokens      = 1024
	DefaultTopK           = 5
	DefaultBufSize        = 100
	DefaultSheetRange     = "Sheet1"
	DefaultDigestSchedule = "0 0 21 * * *"
	DefaultDigestQuestion = "How much did I spend today and on what?"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Provider ProviderConfig `json:"provider"`
	Sheets   SheetsConfig   `json:"sheets"`
	Store    StoreConfig    `json:"store"`
	Digest   DigestConfig   `json:"digest"`

	// WorkingChats restricts which forum topic a chat may talk from:
	// chat ID -> required topic ID. Chats absent from the map are
	// unrestricted. Empty means every topic of every chat is eligible.
	WorkingChats map[int64]int `json:"workingChats,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	Proxy string `json:"proxy,omitempty"`
}

type ProviderConfig struct {
	APIKey    string `json:"apiKey"`
	BaseURL   string `json:"baseUrl,omitempty"`
	Model     string `json:"model"`
	MaxTokens int    `json:"maxTokens"`
}

type SheetsConfig struct {
	SpreadsheetID   string `json:"spreadsheetId"`
	CredentialsFile string `json:"credentialsFile"`
	Range           string `json:"range,omitempty"`
}

type StoreConfig struct {
	Dir string `json:"dir"`
}

type DigestConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
	Question string `json:"question,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Model:     DefaultModel,
			MaxTokens: DefaultMaxTokens,
		},
		Sheets: SheetsConfig{
			Range: DefaultSheetRange,
		},
		Store: StoreConfig{
			Dir: filepath.Join(ConfigDir(), "dbs"),
		},
		Digest: DigestConfig{
			Schedule: DefaultDigestSchedule,
			Question: DefaultDigestQuestion,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".finance-gpt")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if token := os.Getenv("FINANCEGPT_TELEGRAM_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
	if token := os.Getenv("BOT_TOKEN"); token != "" && cfg.Telegram.Token == "" {
		cfg.Telegram.Token = token
	}
	if key := os.Getenv("FINANCEGPT_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if url := os.Getenv("FINANCEGPT_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("FINANCEGPT_MODEL"); model != "" {
		cfg.Provider.Model = model
	}
	if maxTokens := os.Getenv("FINANCEGPT_MAX_TOKENS"); maxTokens != "" {
		if parsed, err := strconv.Atoi(maxTokens); err == nil {
			cfg.Provider.MaxTokens = parsed
		}
	}
	if id := os.Getenv("GOOGLE_SPREADSHEET_ID"); id != "" {
		cfg.Sheets.SpreadsheetID = id
	}
	if file := os.Getenv("GOOGLE_CREDENTIALS_FILE"); file != "" {
		cfg.Sheets.CredentialsFile = file
	}
	if dir := os.Getenv("FINANCEGPT_STORE_DIR"); dir != "" {
		cfg.Store.Dir = dir
	}
	if chats := os.Getenv("WORKING_CHATS_WITH_TOPIC"); chats != "" {
		parsed, err := ParseWorkingChats(chats)
		if err != nil {
			return nil, fmt.Errorf("parse WORKING_CHATS_WITH_TOPIC: %w", err)
		}
		cfg.WorkingChats = parsed
	}

	if cfg.Provider.Model == "" {
		cfg.Provider.Model = DefaultModel
	}
	if cfg.Provider.MaxTokens <= 0 {
		cfg.Provider.MaxTokens = DefaultMaxTokens
	}
	if cfg.Sheets.Range == "" {
		cfg.Sheets.Range = DefaultSheetRange
	}
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = DefaultConfig().Store.Dir
	}
	if cfg.Digest.Schedule == "" {
		cfg.Digest.Schedule = DefaultDigestSchedule
	}
	if cfg.Digest.Question == "" {
		cfg.Digest.Question = DefaultDigestQuestion
	}

	return cfg, nil
}

// ParseWorkingChats decodes a JSON object of stringified chat IDs to topic
// IDs, e.g. {"-1001234":17}.
func ParseWorkingChats(raw string) (map[int64]int, error) {
	parsed := make(map[int64]int)
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
