// Package notify pushes completed-order notifications to a Telegram
// chat. The notifier consumes publisher snapshots, so it sees exactly
// the state every other subscriber sees.
package notify

import (
	"fmt"
	"log"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"signal-engine/internal/publish"
)

// sender is the slice of the Telegram client the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier sends one message per newly completed order. The first
// snapshot after startup only seeds the seen set: completions that
// happened before this process started are history, not news.
type Notifier struct {
	api    sender
	chatID int64
	logger *log.Logger

	mu     sync.Mutex
	primed bool
	seen   map[uint64]struct{}
}

// New creates a Notifier connected to the Telegram Bot API.
func New(token string, chatID int64, logger *log.Logger) (*Notifier, error) {
	if logger == nil {
		logger = log.Default()
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	logger.Printf("notify: telegram bot authorized: @%s", bot.Self.UserName)

	return newWithSender(bot, chatID, logger), nil
}

func newWithSender(api sender, chatID int64, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.Default()
	}
	return &Notifier{
		api:    api,
		chatID: chatID,
		logger: logger,
		seen:   make(map[uint64]struct{}),
	}
}

// Publish implements publish.Sink. Send failures are logged and the
// order stays unseen, so the next snapshot retries the message.
func (n *Notifier) Publish(snap publish.Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.primed {
		for _, v := range snap.Completed {
			n.seen[v.ID] = struct{}{}
		}
		n.primed = true
		return
	}

	for _, v := range snap.Completed {
		if _, ok := n.seen[v.ID]; ok {
			continue
		}
		if err := n.send(completionMessage(v)); err != nil {
			n.logger.Printf("notify: send completion for order %d: %v", v.ID, err)
			continue
		}
		n.seen[v.ID] = struct{}{}
	}
}

func (n *Notifier) send(text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	_, err := n.api.Send(msg)
	return err
}

// completionMessage renders one completed order for the chat.
func completionMessage(v publish.OrderView) string {
	icon := "⏰"
	switch v.ExitReason {
	case "TAKE_PROFIT":
		icon = "✅"
	case "STOP_LOSS":
		icon = "❌"
	}

	return fmt.Sprintf(
		"%s %s %s closed: %s\n"+
			"Entry: %g → Exit: %g\n"+
			"PnL: %+.2f%% | Held: %dm\n"+
			"Channel: %s",
		icon, v.Symbol, v.Side, v.ExitReason,
		v.EntryPrice, v.ExitPrice,
		v.RealizedPnlPct, v.HoldMinutes,
		v.SourceChannel,
	)
}

var _ publish.Sink = (*Notifier)(nil)
