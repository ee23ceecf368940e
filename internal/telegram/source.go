package telegram

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"tgrelay/internal/config"
	"tgrelay/internal/logger"
	"tgrelay/internal/relay"
)

// Source feeds the relay pipeline from the Telegram update stream. It is
// the black-box producer side of the pipeline: protocol handling stays in
// the client library, this adapter only translates updates into
// InboundEvents.
type Source struct {
	bot         *tgbotapi.BotAPI
	logger      logger.Logger
	pollTimeout int
}

func New(cfg config.TelegramConfig, log logger.Logger) (*Source, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram authorization failed: %w", err)
	}

	log.Infow("Telegram client authorized",
		"account", bot.Self.UserName,
	)

	return &Source{
		bot:         bot,
		logger:      log,
		pollTimeout: cfg.PollTimeoutSeconds,
	}, nil
}

func (s *Source) SelfID() int64 {
	return int64(s.bot.Self.ID)
}

// Run consumes updates until ctx is canceled, invoking the pipeline once
// per message. Service updates without a message payload are skipped.
func (s *Source) Run(ctx context.Context, pipe *relay.Pipeline) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = s.pollTimeout

	updates, err := s.bot.GetUpdatesChan(u)
	if err != nil {
		return fmt.Errorf("failed to open update channel: %w", err)
	}

	s.logger.Infow("Consuming Telegram updates")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}

			msg := update.Message
			if msg == nil {
				msg = update.ChannelPost
			}
			if msg == nil {
				continue
			}

			pipe.Relay(ctx, eventFromMessage(msg))
		}
	}
}

func eventFromMessage(m *tgbotapi.Message) *relay.InboundEvent {
	ev := &relay.InboundEvent{
		MessageID: int64(m.MessageID),
		Text:      m.Text,
		Caption:   m.Caption,
		Media:     mediaFromMessage(m),
	}

	if m.Chat != nil {
		ev.Chat = relay.Chat{
			ID:        m.Chat.ID,
			Title:     m.Chat.Title,
			FirstName: m.Chat.FirstName,
		}
	}

	if m.From != nil {
		ev.From = userFrom(m.From)
	}
	if m.ForwardFrom != nil {
		ev.ForwardFrom = userFrom(m.ForwardFrom)
	}
	if m.ForwardFromChat != nil {
		ev.ForwardFromChat = &relay.Chat{
			ID:        m.ForwardFromChat.ID,
			Title:     m.ForwardFromChat.Title,
			FirstName: m.ForwardFromChat.FirstName,
		}
	}

	if m.Date > 0 {
		ev.Date = time.Unix(int64(m.Date), 0).UTC()
	}

	return ev
}

func userFrom(u *tgbotapi.User) *relay.User {
	return &relay.User{
		ID:        int64(u.ID),
		Username:  u.UserName,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

func mediaFromMessage(m *tgbotapi.Message) *relay.Media {
	switch {
	case m.Photo != nil && len(*m.Photo) > 0:
		// the API lists sizes smallest first; take the largest rendition
		sizes := *m.Photo
		largest := sizes[len(sizes)-1]
		return &relay.Media{
			Kind:   "photo",
			FileID: largest.FileID,
			Size:   int64(largest.FileSize),
		}
	case m.Document != nil:
		return &relay.Media{
			Kind:   "document",
			FileID: m.Document.FileID,
			Size:   int64(m.Document.FileSize),
			MIME:   m.Document.MimeType,
		}
	case m.Video != nil:
		return &relay.Media{
			Kind:   "video",
			FileID: m.Video.FileID,
			Size:   int64(m.Video.FileSize),
			MIME:   m.Video.MimeType,
		}
	case m.Audio != nil:
		return &relay.Media{
			Kind:   "audio",
			FileID: m.Audio.FileID,
			Size:   int64(m.Audio.FileSize),
			MIME:   m.Audio.MimeType,
		}
	case m.Voice != nil:
		return &relay.Media{
			Kind:   "voice",
			FileID: m.Voice.FileID,
			Size:   int64(m.Voice.FileSize),
			MIME:   m.Voice.MimeType,
		}
	case m.VideoNote != nil:
		return &relay.Media{
			Kind:   "video_note",
			FileID: m.VideoNote.FileID,
			Size:   int64(m.VideoNote.FileSize),
		}
	case m.Sticker != nil:
		return &relay.Media{
			Kind:   "sticker",
			FileID: m.Sticker.FileID,
			Size:   int64(m.Sticker.FileSize),
		}
	}
	return nil
}
