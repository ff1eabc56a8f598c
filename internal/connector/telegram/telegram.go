// Package telegram implements a Publisher/Subscriber connector over a single
// Telegram chat, following the same Connect/Publish/Subscribe shape as
// internal/connector/discord, adapted here for the
// go-telegram-bot-api/telegram-bot-api client whose update loop is a
// polling channel (bot.GetUpdatesChan) rather than an event-handler
// registration.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rakunlabs/aasmw/internal/apperr"
	"github.com/rakunlabs/aasmw/internal/connector"
)

type Config struct {
	Token  string
	ChatID int64
}

type Connector struct {
	name string
	cfg  Config

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func New(name string, cfg Config) *Connector {
	return &Connector{name: name, cfg: cfg}
}

func (c *Connector) Name() string { return c.name }

func (c *Connector) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bot != nil {
		return nil
	}
	bot, err := tgbotapi.NewBotAPI(c.cfg.Token)
	if err != nil {
		return fmt.Errorf("telegram: new bot api: %w", apperr.ErrConnection)
	}
	c.bot = bot
	return nil
}

func (c *Connector) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bot != nil {
		c.bot.StopReceivingUpdates()
		c.bot = nil
	}
	return nil
}

func (c *Connector) Publish(_ context.Context, event connector.Event) error {
	c.mu.Lock()
	bot := c.bot
	c.mu.Unlock()
	if bot == nil {
		return fmt.Errorf("telegram: publish: %w", apperr.ErrNotRunning)
	}

	text, ok := event.Value.(string)
	if !ok {
		return fmt.Errorf("telegram: publish %q: %w", event.Key, apperr.ErrMapping)
	}
	msg := tgbotapi.NewMessage(c.cfg.ChatID, text)
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: publish %q: %w", event.Key, apperr.ErrConnection)
	}
	return nil
}

// Subscribe drains bot.GetUpdatesChan for the configured chat until ctx is
// cancelled, translating each text update to a connector.Event.
func (c *Connector) Subscribe(ctx context.Context, handler func(connector.Event)) error {
	c.mu.Lock()
	bot := c.bot
	c.mu.Unlock()
	if bot == nil {
		return fmt.Errorf("telegram: subscribe: %w", apperr.ErrNotRunning)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)
	defer bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Chat == nil {
				continue
			}
			if update.Message.Chat.ID != c.cfg.ChatID {
				continue
			}
			handler(connector.Event{
				Key:   strconv.Itoa(update.Message.MessageID),
				Value: update.Message.Text,
			})
		}
	}
}
