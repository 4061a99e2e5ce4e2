package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/c0t0ber/finance-gpt/internal/config"
	"github.com/c0t0ber/finance-gpt/internal/gateway"
	"github.com/c0t0ber/finance-gpt/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "finance-gpt",
	Short: "finance-gpt - record and query expenses from Telegram chat",
}

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot",
	RunE:  runBot,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directory",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and known conversations",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(botCmd)
	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(statusCmd)
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token not set. Run 'finance-gpt onboard' or set FINANCEGPT_TELEGRAM_TOKEN")
	}
	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("provider api key not set. Run 'finance-gpt onboard' or set OPENAI_API_KEY")
	}

	g, err := gateway.New(cfg)
	if err != nil {
		return err
	}
	return g.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(config.ConfigPath()); err == nil {
		fmt.Printf("Config already exists at %s\n", config.ConfigPath())
		return nil
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Store.Dir, 0755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	fmt.Printf("Config written to %s\n", config.ConfigPath())
	fmt.Println("Set telegram.token and provider.apiKey, then run 'finance-gpt bot'.")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("Config:        %s\n", config.ConfigPath())
	fmt.Printf("Store dir:     %s\n", cfg.Store.Dir)
	fmt.Printf("Model:         %s\n", cfg.Provider.Model)
	fmt.Printf("Telegram:      %s\n", configured(cfg.Telegram.Token != ""))
	fmt.Printf("Provider key:  %s\n", configured(cfg.Provider.APIKey != ""))
	fmt.Printf("Spreadsheet:   %s\n", configured(cfg.Sheets.SpreadsheetID != ""))
	fmt.Printf("Digest:        %s\n", configured(cfg.Digest.Enabled))

	if len(cfg.WorkingChats) > 0 {
		fmt.Println("Working chats:")
		for chatID, topicID := range cfg.WorkingChats {
			fmt.Printf("  %d -> topic %d\n", chatID, topicID)
		}
	}

	ids, err := store.New(cfg.Store.Dir).ListConversations()
	if err != nil {
		return err
	}
	fmt.Printf("Conversations: %d\n", len(ids))
	for _, id := range ids {
		fmt.Printf("  %d\n", id)
	}
	return nil
}

func configured(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
