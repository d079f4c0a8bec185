package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/upbo/upbotrading/internal/config"
	"github.com/upbo/upbotrading/internal/events"
	"github.com/upbo/upbotrading/internal/logger"
	"github.com/upbo/upbotrading/internal/portfolio"
)

type Notifier struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	enabled bool
	logger  *logger.Logger
}

func NewNotifier(cfg *config.Config, log *logger.Logger) *Notifier {
	log = log.With("component", "telegram")
	if !cfg.Telegram.Enabled {
		return &Notifier{enabled: false, logger: log}
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		log.Error("failed to create telegram bot", "error", err)
		return &Notifier{enabled: false, logger: log}
	}

	return newWithBot(bot, cfg.Telegram.ChatID, log)
}

func newWithBot(bot *tgbotapi.BotAPI, chatID int64, log *logger.Logger) *Notifier {
	log.Info("telegram bot connected", "username", bot.Self.UserName)
	return &Notifier{
		bot:     bot,
		chatID:  chatID,
		enabled: true,
		logger:  log,
	}
}

func (n *Notifier) Enabled() bool { return n.enabled }

// NotifyOrder reports a matched paper order with the cash left afterwards.
func (n *Notifier) NotifyOrder(tx portfolio.Transaction, cash float64) {
	n.send(formatOrder(tx, cash))
}

func (n *Notifier) NotifyError(context string, err error) {
	n.send(fmt.Sprintf("⚠️ *Error* [%s]\n%v", context, err))
}

func (n *Notifier) NotifyStatus(message string) {
	n.send(message)
}

// HandleEvent forwards bus events worth an operator's attention.
func (n *Notifier) HandleEvent(e events.Event) {
	switch e.Kind {
	case events.KindCredentialInvalid:
		n.send(fmt.Sprintf("🔑 *AI credential rejected* at %s\nAI features are degraded until a new key is set.", e.At.Format("15:04:05")))
	case events.KindCredentialReplaced:
		n.send("🔑 AI credential replaced")
	}
}

func formatOrder(tx portfolio.Transaction, cash float64) string {
	switch tx.Type {
	case portfolio.TxSell:
		emoji := "🔴"
		if tx.RealizedPL > 0 {
			emoji = "💰"
		}
		return fmt.Sprintf("%s *SELL* %s\nPrice: %.2f\nQty: %d\nValue: %.0f\nP&L: %.2f\nCash: %.0f",
			emoji, tx.Symbol, tx.Price, tx.Qty, tx.Value, tx.RealizedPL, cash)
	default:
		return fmt.Sprintf("🟢 *BUY* %s\nPrice: %.2f\nQty: %d\nValue: %.0f\nCash: %.0f",
			tx.Symbol, tx.Price, tx.Qty, tx.Value, cash)
	}
}

func (n *Notifier) send(text string) {
	if !n.enabled {
		return
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error("send telegram message", "error", err)
	}
}
