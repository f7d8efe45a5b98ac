package broadcast

import (
	"context"
	"errors"
	"fmt"

	"forge/internal/game"

	"github.com/bwmarrin/discordgo"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Headline is the one-line text every channel shows for an announcement.
func Headline(a game.Announcement) string {
	return fmt.Sprintf("%s forged %s to +%d!", a.Username, a.WeaponName, a.Level)
}

// Fanout delivers to every sink and reports all failures together.
type Fanout []game.Announcer

func (f Fanout) Announce(ctx context.Context, a game.Announcement) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Announce(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DiscordSink posts announcements through a channel webhook.
type DiscordSink struct {
	session   *discordgo.Session
	webhookID string
	token     string
}

func NewDiscordSink(webhookID, token string) (*DiscordSink, error) {
	// Webhook execution needs no bot token.
	s, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &DiscordSink{session: s, webhookID: webhookID, token: token}, nil
}

func (d *DiscordSink) Announce(ctx context.Context, a game.Announcement) error {
	_, err := d.session.WebhookExecute(d.webhookID, d.token, false, &discordgo.WebhookParams{
		Username: "Forge",
		Embeds: []*discordgo.MessageEmbed{{
			Title:       Headline(a),
			Description: fmt.Sprintf("Weapon #%d reached level %d.", a.WeaponID, a.Level),
			Timestamp:   a.At.Format("2006-01-02T15:04:05Z07:00"),
			Color:       0xF5A623,
		}},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	return nil
}

// TelegramSink posts announcements to one chat.
type TelegramSink struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramSink{bot: bot, chatID: chatID}, nil
}

// NewTelegramSinkWithBot wraps an already configured bot.
func NewTelegramSinkWithBot(bot *tgbotapi.BotAPI, chatID int64) *TelegramSink {
	return &TelegramSink{bot: bot, chatID: chatID}
}

func (t *TelegramSink) Announce(ctx context.Context, a game.Announcement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, Headline(a))
	msg.DisableNotification = a.Level < 15
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
