package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/c0t0ber/finance-gpt/internal/bus"
	"github.com/c0t0ber/finance-gpt/internal/config"
)

const telegramChannelName = "telegram"

const pollTimeoutSeconds = 30

const greeting = `Hi! I record your financial transactions. Send me an amount with a description, like "Lunch 50000", and I will store it in your own database. Then ask me anything about your spending. Please do not ask me to drop the database: you would only drop your own, and I do not drop databases.`

// TelegramBot is the slice of the bot API the channel uses. Updates and sends
// go through MakeRequest because tgbotapi v5.5.1 predates forum topics, and
// message_thread_id only survives raw request/response JSON.
type TelegramBot interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
	GetSelf() tgbotapi.User
}

// tgBotWrapper wraps tgbotapi.BotAPI to implement the TelegramBot interface
type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	return w.bot.MakeRequest(endpoint, params)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

// BotFactory creates TelegramBot instances (allows mocking)
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

// update mirrors the Bot API update shape with the fields the pipeline needs,
// including message_thread_id.
type update struct {
	UpdateID int64            `json:"update_id"`
	Message  *incomingMessage `json:"message"`
}

type incomingMessage struct {
	MessageID       int    `json:"message_id"`
	MessageThreadID int    `json:"message_thread_id"`
	Date            int64  `json:"date"`
	Text            string `json:"text"`
	From            *struct {
		ID       int64  `json:"id"`
		UserName string `json:"username"`
	} `json:"from"`
	Chat *struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

type TelegramChannel struct {
	token      string
	proxy      string
	bot        TelegramBot
	bus        *bus.MessageBus
	cancel     context.CancelFunc
	botFactory BotFactory
}

func NewTelegramChannel(cfg config.TelegramConfig, b *bus.MessageBus) (*TelegramChannel, error) {
	return NewTelegramChannelWithFactory(cfg, b, defaultBotFactory)
}

// NewTelegramChannelWithFactory creates a TelegramChannel with a custom bot
// factory (for testing)
func NewTelegramChannelWithFactory(cfg config.TelegramConfig, b *bus.MessageBus, factory BotFactory) (*TelegramChannel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	return &TelegramChannel{
		token:      cfg.Token,
		proxy:      cfg.Proxy,
		bus:        b,
		botFactory: factory,
	}, nil
}

func (t *TelegramChannel) Name() string {
	return telegramChannelName
}

func (t *TelegramChannel) initBot() error {
	client := http.DefaultClient
	if t.proxy != "" {
		proxyURL, err := url.Parse(t.proxy)
		if err != nil {
			return fmt.Errorf("parse proxy url: %w", err)
		}
		client = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	}

	bot, err := t.botFactory(t.token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = bot
	log.Printf("[telegram] authorized as @%s", bot.GetSelf().UserName)
	return nil
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	if err := t.initBot(); err != nil {
		return err
	}

	ctx, t.cancel = context.WithCancel(ctx)
	go t.pollLoop(ctx)

	log.Printf("[telegram] polling started")
	return nil
}

func (t *TelegramChannel) pollLoop(ctx context.Context) {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := t.fetchUpdates(offset)
		if err != nil {
			log.Printf("[telegram] get updates failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message != nil {
				t.handleMessage(u.Message)
			}
		}
	}
}

func (t *TelegramChannel) fetchUpdates(offset int64) ([]update, error) {
	params := make(tgbotapi.Params)
	params.AddNonZero64("offset", offset)
	params.AddNonZero("timeout", pollTimeoutSeconds)

	resp, err := t.bot.MakeRequest("getUpdates", params)
	if err != nil {
		return nil, err
	}

	var updates []update
	if err := json.Unmarshal(resp.Result, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}

func (t *TelegramChannel) handleMessage(msg *incomingMessage) {
	if msg.Chat == nil || msg.From == nil || msg.Text == "" {
		return
	}

	if strings.HasPrefix(msg.Text, "/") {
		cmd := strings.TrimPrefix(strings.Fields(msg.Text)[0], "/")
		if at := strings.Index(cmd, "@"); at >= 0 {
			cmd = cmd[:at]
		}
		if cmd == "start" {
			if err := t.sendText(msg.Chat.ID, msg.MessageThreadID, 0, greeting); err != nil {
				log.Printf("[telegram] send greeting failed: %v", err)
			}
		}
		return
	}

	t.bus.Inbound <- bus.InboundMessage{
		Channel:   telegramChannelName,
		ChatID:    msg.Chat.ID,
		TopicID:   msg.MessageThreadID,
		MessageID: msg.MessageID,
		SenderID:  strconv.FormatInt(msg.From.ID, 10),
		Content:   msg.Text,
		Timestamp: time.Unix(msg.Date, 0),
	}
}

func (t *TelegramChannel) Send(msg bus.OutboundMessage) error {
	if t.bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}

	content := msg.Content
	replyTo := msg.ReplyTo

	// Telegram has a 4096 char limit per message
	const maxLen = 4000
	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxLen {
			// Try to split at last newline before maxLen
			idx := strings.LastIndex(chunk[:maxLen], "\n")
			if idx > 0 {
				chunk = chunk[:idx]
			} else {
				chunk = chunk[:maxLen]
			}
		}
		content = content[len(chunk):]

		if err := t.sendText(msg.ChatID, msg.TopicID, replyTo, chunk); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
		replyTo = 0
	}
	return nil
}

func (t *TelegramChannel) sendText(chatID int64, topicID, replyTo int, text string) error {
	params := make(tgbotapi.Params)
	params.AddNonZero64("chat_id", chatID)
	params.AddNonEmpty("text", text)
	params.AddNonZero("message_thread_id", topicID)
	params.AddNonZero("reply_to_message_id", replyTo)

	_, err := t.bot.MakeRequest("sendMessage", params)
	return err
}

func (t *TelegramChannel) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	log.Printf("[telegram] stopped")
	return nil
}

// SetBot sets the bot (for testing)
func (t *TelegramChannel) SetBot(bot TelegramBot) {
	t.bot = bot
}
