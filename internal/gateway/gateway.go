package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/c0t0ber/finance-gpt/internal/bus"
	"github.com/c0t0ber/finance-gpt/internal/chain"
	"github.com/c0t0ber/finance-gpt/internal/channel"
	"github.com/c0t0ber/finance-gpt/internal/config"
	"github.com/c0t0ber/finance-gpt/internal/digest"
	"github.com/c0t0ber/finance-gpt/internal/llm"
	"github.com/c0t0ber/finance-gpt/internal/replicate"
	"github.com/c0t0ber/finance-gpt/internal/sheets"
	"github.com/c0t0ber/finance-gpt/internal/store"
)

const apology = "Sorry, I could not process your message. Please try again."

// Options for creating a Gateway with injected collaborators (for testing)
type Options struct {
	LLM        chain.LLM
	Appender   replicate.Appender
	SignalChan chan os.Signal
}

// Gateway routes inbound chat messages through the query pipeline: topic
// eligibility, schema init, SQL generation and execution, spreadsheet
// replication, and the natural-language answer.
type Gateway struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	channels   *channel.Manager
	store      *store.Store
	chain      *chain.Chain
	replicator *replicate.Replicator
	digest     *digest.Service
	signalChan chan os.Signal
}

// New creates a Gateway with default collaborators
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with custom options for testing
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg}

	g.bus = bus.NewMessageBus(config.DefaultBufSize)
	g.store = store.New(cfg.Store.Dir)

	model := opts.LLM
	if model == nil {
		client, err := llm.New(cfg.Provider)
		if err != nil {
			return nil, fmt.Errorf("create llm client: %w", err)
		}
		model = client
	}
	g.chain = chain.New(model, g.store)

	appender := opts.Appender
	if appender == nil && cfg.Sheets.SpreadsheetID != "" {
		sheet, err := sheets.New(context.Background(), cfg.Sheets)
		if err != nil {
			return nil, fmt.Errorf("create sheets client: %w", err)
		}
		appender = sheet
	}
	if appender != nil {
		g.replicator = replicate.NewReplicator(g.store, appender)
	} else {
		log.Printf("[gateway] no spreadsheet configured, replication disabled")
	}

	chMgr, err := channel.NewManager(cfg.Telegram, g.bus)
	if err != nil {
		return nil, fmt.Errorf("create channel manager: %w", err)
	}
	g.channels = chMgr

	if cfg.Digest.Enabled {
		g.digest = digest.New(cfg.Digest.Schedule, g.runDigest)
	}

	g.signalChan = opts.SignalChan

	return g, nil
}

func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchOutbound(ctx)

	if err := g.channels.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	log.Printf("[gateway] channels started: %v", g.channels.EnabledChannels())

	if g.digest != nil {
		if err := g.digest.Start(ctx); err != nil {
			log.Printf("[gateway] digest start warning: %v", err)
		}
	}

	go g.processLoop(ctx)

	log.Printf("[gateway] running")

	// Use injected signal channel for testing, or create default
	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	return g.Shutdown()
}

func (g *Gateway) processLoop(ctx context.Context) {
	for {
		select {
		case msg := <-g.bus.Inbound:
			g.handleMessage(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) handleMessage(ctx context.Context, msg bus.InboundMessage) {
	if !g.eligible(msg) {
		log.Printf("[gateway] dropping message from chat %d topic %d: topic not allowed", msg.ChatID, msg.TopicID)
		return
	}

	log.Printf("[gateway] inbound from %s/%s: %s", msg.Channel, msg.SenderID, truncate(msg.Content, 80))

	if err := g.ensureSchema(msg.ChatID); err != nil {
		log.Printf("[gateway] schema init failed for chat %d, giving up on message: %v", msg.ChatID, err)
		return
	}

	res, err := g.chain.GenerateAndExecute(ctx, msg.ChatID, msg.Content)
	if err != nil {
		log.Printf("[gateway] generation error for chat %d: %v", msg.ChatID, err)
		g.reply(msg, apology)
		return
	}

	if g.replicator != nil {
		g.replicator.MaybeReplicate(ctx, msg.ChatID, res.Query, res.Result)
	}

	answer, err := g.chain.Explain(ctx, msg.Content, res)
	if err != nil {
		log.Printf("[gateway] explanation error for chat %d: %v", msg.ChatID, err)
		g.reply(msg, apology)
		return
	}

	g.reply(msg, FormatReply(res.Query, res.Result, answer))
}

// eligible reports whether the message's topic may talk to the bot: chats
// absent from the mapping are unrestricted.
func (g *Gateway) eligible(msg bus.InboundMessage) bool {
	required, ok := g.cfg.WorkingChats[msg.ChatID]
	return !ok || msg.TopicID == required
}

// ensureSchema retries a failed schema init once before aborting the message.
func (g *Gateway) ensureSchema(chatID int64) error {
	err := g.store.EnsureSchema(chatID)
	if err == nil {
		return nil
	}
	log.Printf("[gateway] schema init for chat %d failed, retrying once: %v", chatID, err)
	return g.store.EnsureSchema(chatID)
}

func (g *Gateway) reply(msg bus.InboundMessage, content string) {
	g.bus.Outbound <- bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		TopicID: msg.TopicID,
		ReplyTo: msg.MessageID,
		Content: content,
	}
}

// runDigest pushes the configured digest question through the pipeline for
// every conversation that already has a database.
func (g *Gateway) runDigest(ctx context.Context) {
	ids, err := g.store.ListConversations()
	if err != nil {
		log.Printf("[digest] list conversations failed: %v", err)
		return
	}

	question := g.cfg.Digest.Question
	for _, id := range ids {
		res, err := g.chain.GenerateAndExecute(ctx, id, question)
		if err != nil {
			log.Printf("[digest] generation error for chat %d: %v", id, err)
			continue
		}
		answer, err := g.chain.Explain(ctx, question, res)
		if err != nil {
			log.Printf("[digest] explanation error for chat %d: %v", id, err)
			continue
		}
		for _, name := range g.channels.EnabledChannels() {
			g.bus.Outbound <- bus.OutboundMessage{
				Channel: name,
				ChatID:  id,
				TopicID: g.cfg.WorkingChats[id],
				Content: answer,
			}
		}
	}
}

func (g *Gateway) Shutdown() error {
	if g.digest != nil {
		g.digest.Stop()
	}
	_ = g.channels.StopAll()
	log.Printf("[gateway] shutdown complete")
	return nil
}

// FormatReply renders the reply text sent back to the user.
func FormatReply(query, result, answer string) string {
	return fmt.Sprintf("Query: %s\n\n\nResult: %s\n\n\nAnswer: %s", query, result, answer)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
