// Package discord implements a Publisher/Subscriber connector over a single
// Discord text channel, grounded on the session-lifecycle and
// handler-registration style of the discord package in the MrWong99-glyphoxa
// example (internal/discord/bot.go's New/Close), adapted from a slash-command
// bot into a notification channel: outbound entity changes become channel
// messages, inbound messages become connector.Event values.
package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/rakunlabs/aasmw/internal/apperr"
	"github.com/rakunlabs/aasmw/internal/connector"
)

// Config configures the Discord session and target channel.
type Config struct {
	Token     string
	ChannelID string
}

// Connector publishes entity changes as channel messages and subscribes to
// messages posted in that channel.
type Connector struct {
	name string
	cfg  Config

	mu      sync.Mutex
	session *discordgo.Session
}

func New(name string, cfg Config) *Connector {
	return &Connector{name: name, cfg: cfg}
}

func (c *Connector) Name() string { return c.name }

func (c *Connector) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return nil
	}

	session, err := discordgo.New("Bot " + c.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord: create session: %w", apperr.ErrConnection)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", apperr.ErrConnection)
	}
	c.session = session
	return nil
}

func (c *Connector) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	if err != nil {
		return fmt.Errorf("discord: close session: %w", err)
	}
	return nil
}

// Publish posts event.Value (formatted to string by the caller's
// mapper.Formatter) as a channel message.
func (c *Connector) Publish(_ context.Context, event connector.Event) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return fmt.Errorf("discord: publish: %w", apperr.ErrNotRunning)
	}

	text, ok := event.Value.(string)
	if !ok {
		return fmt.Errorf("discord: publish %q: %w", event.Key, apperr.ErrMapping)
	}
	if _, err := session.ChannelMessageSend(c.cfg.ChannelID, text); err != nil {
		return fmt.Errorf("discord: publish %q: %w", event.Key, apperr.ErrConnection)
	}
	return nil
}

// Subscribe registers handler for every non-bot message posted in the
// configured channel, translating it to a connector.Event. Blocks until ctx
// is cancelled, mirroring discordgo's AddHandler + session lifetime pattern.
func (c *Connector) Subscribe(ctx context.Context, handler func(connector.Event)) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return fmt.Errorf("discord: subscribe: %w", apperr.ErrNotRunning)
	}

	remove := session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author != nil && m.Author.Bot {
			return
		}
		if m.ChannelID != c.cfg.ChannelID {
			return
		}
		handler(connector.Event{Key: m.ID, Value: m.Content})
	})
	defer remove()

	<-ctx.Done()
	return ctx.Err()
}
