package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/semmidev/donky/internal/config"
	"github.com/semmidev/donky/internal/domain"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func TestTelegramNotifier(t *testing.T) {
	Convey("Given a telegram notifier", t, func() {
		bot := &fakeSender{}
		n := &TelegramNotifier{bot: bot, chatID: 42}
		started := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
		report := domain.Report{
			RunID:      "run-1",
			Job:        "customers",
			Backup:     domain.BackupDescriptor{ArtifactPath: "/backups/backup.xbstream", ServerVersion: "8.0"},
			Result:     domain.ObfuscationResult{Executed: 12, Workers: 4},
			StartedAt:  started,
			FinishedAt: started.Add(90 * time.Second),
		}
		ctx := context.Background()

		Convey("When the run succeeded", func() {
			So(n.Notify(ctx, report), ShouldBeNil)

			Convey("It should send a summary", func() {
				So(len(bot.sent), ShouldEqual, 1)
				msg := bot.sent[0].(tgbotapi.MessageConfig)
				So(msg.ChatID, ShouldEqual, 42)
				So(msg.Text, ShouldContainSubstring, "customers succeeded")
				So(msg.Text, ShouldContainSubstring, "12 ok, 0 failed (4 workers)")
				So(msg.Text, ShouldContainSubstring, "1m30s")
			})
		})

		Convey("When only errors are reported", func() {
			n.onlyError = true

			So(n.Notify(ctx, report), ShouldBeNil)
			So(bot.sent, ShouldBeEmpty)

			report.Err = errors.New("restore timeout")
			So(n.Notify(ctx, report), ShouldBeNil)
			So(len(bot.sent), ShouldEqual, 1)
			So(bot.sent[0].(tgbotapi.MessageConfig).Text, ShouldContainSubstring, "restore timeout")
		})

		Convey("When sending fails", func() {
			bot.err = errors.New("unauthorized")

			err := n.Notify(ctx, report)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to send telegram notification")
		})
	})

	Convey("Given an invalid chat id", t, func() {
		_, err := NewTelegram(config.TelegramConfig{BotToken: "x", ChatID: "abc"})
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "invalid telegram chat id")
	})
}
