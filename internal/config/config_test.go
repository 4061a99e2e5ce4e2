package config

import (
	"os"
	"path/filepath"
	"testing"
)

// isolateEnv points HOME at a temp dir and clears every override the loader
// reads so ambient environment cannot leak into the test.
func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, name := range []string{
		"FINANCEGPT_TELEGRAM_TOKEN", "BOT_TOKEN",
		"FINANCEGPT_API_KEY", "OPENAI_API_KEY",
		"FINANCEGPT_BASE_URL", "FINANCEGPT_MODEL", "FINANCEGPT_MAX_TOKENS",
		"GOOGLE_SPREADSHEET_ID", "GOOGLE_CREDENTIALS_FILE",
		"FINANCEGPT_STORE_DIR", "WORKING_CHATS_WITH_TOPIC",
	} {
		t.Setenv(name, "")
	}
	return home
}

func TestLoadConfigDefaults(t *testing.T) {
	home := isolateEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Provider.Model != DefaultModel {
		t.Errorf("Model = %q", cfg.Provider.Model)
	}
	if cfg.Provider.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d", cfg.Provider.MaxTokens)
	}
	if cfg.Sheets.Range != DefaultSheetRange {
		t.Errorf("Range = %q", cfg.Sheets.Range)
	}
	want := filepath.Join(home, ".finance-gpt", "dbs")
	if cfg.Store.Dir != want {
		t.Errorf("Store.Dir = %q, want %q", cfg.Store.Dir, want)
	}
	if cfg.Digest.Schedule != DefaultDigestSchedule {
		t.Errorf("Digest.Schedule = %q", cfg.Digest.Schedule)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	home := isolateEnv(t)

	dir := filepath.Join(home, ".finance-gpt")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	data := `{
		"telegram": {"token": "file-token"},
		"provider": {"apiKey": "file-key", "model": "gpt-4o-mini"},
		"workingChats": {"-1001234": 17}
	}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Telegram.Token != "file-token" {
		t.Errorf("Token = %q", cfg.Telegram.Token)
	}
	if cfg.Provider.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q", cfg.Provider.Model)
	}
	if cfg.WorkingChats[-1001234] != 17 {
		t.Errorf("WorkingChats = %v", cfg.WorkingChats)
	}
	// Fields the file omits keep their defaults.
	if cfg.Provider.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d", cfg.Provider.MaxTokens)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("FINANCEGPT_TELEGRAM_TOKEN", "env-token")
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("FINANCEGPT_MODEL", "gpt-4o")
	t.Setenv("FINANCEGPT_MAX_TOKENS", "2048")
	t.Setenv("GOOGLE_SPREADSHEET_ID", "sheet-id")
	t.Setenv("WORKING_CHATS_WITH_TOPIC", `{"42": 7}`)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Errorf("Token = %q", cfg.Telegram.Token)
	}
	if cfg.Provider.APIKey != "env-key" {
		t.Errorf("APIKey = %q", cfg.Provider.APIKey)
	}
	if cfg.Provider.Model != "gpt-4o" {
		t.Errorf("Model = %q", cfg.Provider.Model)
	}
	if cfg.Provider.MaxTokens != 2048 {
		t.Errorf("MaxTokens = %d", cfg.Provider.MaxTokens)
	}
	if cfg.Sheets.SpreadsheetID != "sheet-id" {
		t.Errorf("SpreadsheetID = %q", cfg.Sheets.SpreadsheetID)
	}
	if cfg.WorkingChats[42] != 7 {
		t.Errorf("WorkingChats = %v", cfg.WorkingChats)
	}
}

func TestLoadConfigPrimaryEnvWinsOverFile(t *testing.T) {
	home := isolateEnv(t)

	dir := filepath.Join(home, ".finance-gpt")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	data := `{"telegram": {"token": "file-token"}, "provider": {"apiKey": "file-key"}}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FINANCEGPT_TELEGRAM_TOKEN", "env-token")
	// Compatibility names only fill the gap, they never override.
	t.Setenv("OPENAI_API_KEY", "env-key")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Errorf("Token = %q", cfg.Telegram.Token)
	}
	if cfg.Provider.APIKey != "file-key" {
		t.Errorf("APIKey = %q", cfg.Provider.APIKey)
	}
}

func TestLoadConfigBadWorkingChats(t *testing.T) {
	isolateEnv(t)
	t.Setenv("WORKING_CHATS_WITH_TOPIC", "not json")

	if _, err := LoadConfig(); err == nil {
		t.Error("expected error for malformed WORKING_CHATS_WITH_TOPIC")
	}
}

func TestParseWorkingChats(t *testing.T) {
	got, err := ParseWorkingChats(`{"-1001234": 17, "42": 0}`)
	if err != nil {
		t.Fatalf("ParseWorkingChats error: %v", err)
	}
	if len(got) != 2 || got[-1001234] != 17 || got[42] != 0 {
		t.Errorf("ParseWorkingChats = %v", got)
	}

	if _, err := ParseWorkingChats(`["nope"]`); err == nil {
		t.Error("expected error for non-object input")
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	isolateEnv(t)

	cfg := DefaultConfig()
	cfg.Telegram.Token = "saved-token"
	cfg.WorkingChats = map[int64]int{-1001234: 17}
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig error: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if loaded.Telegram.Token != "saved-token" {
		t.Errorf("Token = %q", loaded.Telegram.Token)
	}
	if loaded.WorkingChats[-1001234] != 17 {
		t.Errorf("WorkingChats = %v", loaded.WorkingChats)
	}
}
