package notifier

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/semmidev/donky/internal/config"
	"github.com/semmidev/donky/internal/domain"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts run reports to a chat.
type TelegramNotifier struct {
	bot       sender
	chatID    int64
	onlyError bool
}

func NewTelegram(cfg config.TelegramConfig) (*TelegramNotifier, error) {
	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", cfg.ChatID, err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramNotifier{bot: bot, chatID: chatID, onlyError: cfg.OnlyError}, nil
}

func (t *TelegramNotifier) Notify(ctx context.Context, report domain.Report) error {
	if t.onlyError && report.Success() {
		return nil
	}

	msg := tgbotapi.NewMessage(t.chatID, FormatReport(report))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}

// FormatReport renders a report as a short plain text message.
func FormatReport(report domain.Report) string {
	var b strings.Builder
	if report.Success() {
		fmt.Fprintf(&b, "✅ Obfuscation %s succeeded\n\n", report.Job)
	} else {
		fmt.Fprintf(&b, "❌ Obfuscation %s failed\n\n", report.Job)
	}

	fmt.Fprintf(&b, "🆔 Run: %s\n", report.RunID)
	if report.Backup.ArtifactPath != "" {
		fmt.Fprintf(&b, "📁 Backup: %s\n", report.Backup.ArtifactPath)
		fmt.Fprintf(&b, "🐬 Server: %s\n", report.Backup.ServerVersion)
	}
	if report.Result.Workers > 0 {
		fmt.Fprintf(&b, "📊 Statements: %d ok, %d failed (%d workers)\n",
			report.Result.Executed, report.Result.Failed, report.Result.Workers)
	}
	fmt.Fprintf(&b, "🕐 Duration: %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Second))
	if report.Err != nil {
		fmt.Fprintf(&b, "\n⚠️ %v", report.Err)
	}

	return b.String()
}
