package channel

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"taskpilot/internal/model"
	"taskpilot/internal/notify"
	kit "taskpilot/internal/transport"
	logx "taskpilot/pkg/logx"
	"taskpilot/pkg/tgui"
)

// LinkSource resolves an owner's chat link.
type LinkSource interface {
	ChatLinkForOwner(ctx context.Context, owner string) (model.ChatLink, bool, error)
}

// TextSender is the part of the transport adapter the channel needs.
type TextSender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

type TelegramConfig struct {
	Enabled    bool
	RatePerSec int
}

// Telegram delivers the HTML rendering of a message to the owner's linked chat.
type Telegram struct {
	mu      sync.Mutex
	cfg     TelegramConfig
	limiter *rate.Limiter

	links  LinkSource
	sender TextSender
	log    logx.Logger
}

func NewTelegram(cfg TelegramConfig, links LinkSource, sender TextSender, log logx.Logger) *Telegram {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Telegram{links: links, sender: sender, log: log}
	c.Apply(cfg)
	return c
}

// Apply swaps config at runtime.
func (c *Telegram) Apply(cfg TelegramConfig) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	c.mu.Lock()
	c.cfg = cfg
	// Bot API allows ~30 msg/s globally; burst = rate so a digest fan-out doesn't stall.
	c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	c.mu.Unlock()
}

func (c *Telegram) Name() string { return NameTelegram }

func (c *Telegram) Available(ctx context.Context, owner string) (ok bool) {
	defer guard(c.log, NameTelegram, &ok)
	_, ok = c.target(ctx, owner)
	return ok
}

func (c *Telegram) Send(ctx context.Context, owner string, msg notify.Message) (ok bool) {
	defer guard(c.log, NameTelegram, &ok)

	to, ok := c.target(ctx, owner)
	if !ok {
		return false
	}
	c.mu.Lock()
	lim := c.limiter
	c.mu.Unlock()
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			c.log.Warn("telegram send aborted", logx.String("owner", owner), logx.Err(err))
			return false
		}
	}

	text := msg.HTML.String()
	if text == "" {
		text = tgui.Esc(msg.Text).String()
	}
	if _, err := c.sender.SendText(ctx, to, text, &kit.SendOptions{ParseMode: tgui.ParseModeHTML, DisablePreview: true}); err != nil {
		c.log.Warn("telegram send failed", logx.String("owner", owner), logx.Int64("chat_id", to.ChatID), logx.Err(err))
		return false
	}
	return true
}

func (c *Telegram) target(ctx context.Context, owner string) (kit.ChatTarget, bool) {
	c.mu.Lock()
	enabled := c.cfg.Enabled
	c.mu.Unlock()
	if !enabled || c.sender == nil || c.links == nil {
		return kit.ChatTarget{}, false
	}
	link, found, err := c.links.ChatLinkForOwner(ctx, owner)
	if err != nil {
		c.log.Warn("chat link lookup failed", logx.String("owner", owner), logx.Err(err))
		return kit.ChatTarget{}, false
	}
	if !found || !link.Enabled || link.ChatID == 0 {
		return kit.ChatTarget{}, false
	}
	return kit.ChatTarget{ChatID: link.ChatID}, true
}
