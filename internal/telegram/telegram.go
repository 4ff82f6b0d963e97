// Package telegram delivers plant notifications to subscribed Telegram chats
// and answers bot commands.
package telegram

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// DefaultQueueSize is the number of pending broadcasts held before new ones
// are dropped.
const DefaultQueueSize = 32

const (
	welcomeText  = "Willkommen! Dieser Chat erhält ab jetzt Meldungen zur PV-Anlage."
	stopText     = "Dieser Chat erhält keine Meldungen mehr. Mit /start wieder anmelden."
	fallbackText = "Befehle siehe /help."
)

// API is the subset of the Bot API client used here.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Recipients persists subscribed chats.
type Recipients interface {
	AddRecipient(ctx context.Context, chatID int64) (bool, error)
	RemoveRecipient(ctx context.Context, chatID int64) error
	Recipients(ctx context.Context) ([]int64, error)
}

// Options configures a Bot.
type Options struct {
	// QueueSize bounds pending broadcasts. Zero means DefaultQueueSize.
	QueueSize int
	// Status renders the current confirmed state for /status.
	Status func() string
	// History renders recent transitions for /history.
	History func(ctx context.Context) (string, error)
	// Delivered is called once per recipient after each send attempt.
	Delivered func(chatID int64, err error)
}

type command struct {
	name string
	desc string
}

var commands = []command{
	{"start", "Meldungen abonnieren"},
	{"status", "Aktuellen Anlagenzustand anzeigen"},
	{"history", "Letzte bestätigte Ereignisse anzeigen"},
	{"stop", "Meldungen abbestellen"},
	{"help", "Diese Hilfe anzeigen"},
}

// Bot subscribes chats, answers commands and fans out broadcasts.
// It is usable before the Bot API is reachable: broadcasts queue until
// Connect or Attach supplies a client.
type Bot struct {
	recipients Recipients
	opts       Options
	queue      chan string

	api      API
	ready    chan struct{}
	attached sync.Once
}

// New creates a Bot without a client. Connect (or Attach), Run and RunSender
// must be started by the caller.
func New(recipients Recipients, opts Options) *Bot {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Bot{
		recipients: recipients,
		opts:       opts,
		queue:      make(chan string, opts.QueueSize),
		ready:      make(chan struct{}),
	}
}

// Dialer opens a Bot API client.
type Dialer func() (API, error)

// Dial returns a Dialer that authenticates with token.
func Dial(token string) Dialer {
	return func() (API, error) {
		api, err := tgbotapi.NewBotAPI(token)
		if err != nil {
			return nil, err
		}
		log.Printf("Telegram connected as @%s", api.Self.UserName)
		return api, nil
	}
}

// RetryPolicy backs off exponentially up to maxInterval between attempts and
// never gives up on its own.
func RetryPolicy(maxInterval time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	return b
}

// Connect dials until it succeeds or ctx is cancelled, then attaches the
// client. It returns the last dial error when ctx ends first.
func (b *Bot) Connect(ctx context.Context, dial Dialer, policy backoff.BackOff) error {
	var api API
	op := func() error {
		var err error
		api, err = dial()
		if err != nil {
			log.Printf("Telegram connect failed: %v", err)
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("telegram connect: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("telegram connect: %w", err)
	}
	b.Attach(api)
	return nil
}

// Attach sets the client and releases Run and RunSender. Only the first
// call has an effect.
func (b *Bot) Attach(api API) {
	b.attached.Do(func() {
		b.api = api
		close(b.ready)
	})
}

// Pending returns the number of queued broadcasts.
func (b *Bot) Pending() int {
	return len(b.queue)
}

// Broadcast queues text for delivery to every recipient. It never blocks;
// it returns false and drops the message when the queue is full.
func (b *Bot) Broadcast(text string) bool {
	select {
	case b.queue <- text:
		return true
	default:
		log.Printf("Telegram queue full, dropping message")
		return false
	}
}

// waitReady blocks until a client is attached. It reports false if ctx
// ends first.
func (b *Bot) waitReady(ctx context.Context) bool {
	select {
	case <-b.ready:
		return true
	case <-ctx.Done():
		return false
	}
}

// RunSender drains the broadcast queue until ctx is cancelled. Nothing is
// sent before a client is attached.
func (b *Bot) RunSender(ctx context.Context) {
	if !b.waitReady(ctx) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-b.queue:
			b.deliver(ctx, text)
		}
	}
}

func (b *Bot) deliver(ctx context.Context, text string) {
	ids, err := b.recipients.Recipients(ctx)
	if err != nil {
		log.Printf("Telegram: list recipients: %v", err)
		return
	}
	for _, id := range ids {
		_, err := b.api.Send(tgbotapi.NewMessage(id, text))
		if err != nil {
			log.Printf("Telegram: send to chat %d failed: %v", id, err)
		} else {
			log.Printf("Telegram: sent message to chat %d", id)
		}
		if b.opts.Delivered != nil {
			b.opts.Delivered(id, err)
		}
	}
}

// Run long-polls for updates and handles them until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	if !b.waitReady(ctx) {
		return
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			b.handle(ctx, upd)
		}
	}
}

func (b *Bot) handle(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil {
		return
	}
	if msg.Chat == nil {
		log.Printf("Telegram: message without chat")
		return
	}
	chatID := msg.Chat.ID

	if msg.Command() == "stop" {
		if err := b.recipients.RemoveRecipient(ctx, chatID); err != nil {
			log.Printf("Telegram: unsubscribe chat %d: %v", chatID, err)
		} else {
			log.Printf("Telegram: chat %d unsubscribed", chatID)
		}
		b.reply(chatID, stopText)
		return
	}

	isNew, err := b.recipients.AddRecipient(ctx, chatID)
	if err != nil {
		log.Printf("Telegram: subscribe chat %d: %v", chatID, err)
	} else if isNew {
		log.Printf("Telegram: chat %d subscribed", chatID)
	}

	b.reply(chatID, b.respond(ctx, msg))
}

func (b *Bot) respond(ctx context.Context, msg *tgbotapi.Message) string {
	switch msg.Command() {
	case "start":
		return welcomeText
	case "status":
		if b.opts.Status == nil {
			return fallbackText
		}
		return b.opts.Status()
	case "history":
		if b.opts.History == nil {
			return fallbackText
		}
		text, err := b.opts.History(ctx)
		if err != nil {
			log.Printf("Telegram: history: %v", err)
			return "Verlauf nicht verfügbar."
		}
		return text
	case "help":
		return helpText()
	default:
		return fallbackText
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Printf("Telegram: reply to chat %d failed: %v", chatID, err)
	}
}

func helpText() string {
	var sb strings.Builder
	for i, c := range commands {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "/%s - %s", c.name, c.desc)
	}
	return sb.String()
}
