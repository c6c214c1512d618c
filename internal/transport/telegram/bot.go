// internal/transport/telegram/bot.go
package telegram

import (
	"context"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"trip-report-bot/internal/common/config"
	stderrors "trip-report-bot/internal/common/errors"
	"trip-report-bot/internal/common/logger"
	"trip-report-bot/internal/common/observability"
	"trip-report-bot/internal/filter"
	"trip-report-bot/internal/retrieval"
	"trip-report-bot/internal/session"
)

// Bot is the slice of the Telegram API the service uses. The concrete
// client is wrapped so tests can script updates and capture sends.
type Bot interface {
	GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}

type botWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *botWrapper) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(cfg)
}

func (w *botWrapper) StopReceivingUpdates() { w.bot.StopReceivingUpdates() }

func (w *botWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) { return w.bot.Send(c) }

func (w *botWrapper) GetSelf() tgbotapi.User { return w.bot.Self }

// BotFactory creates Bot instances; swapped out in tests.
type BotFactory func(token string) (Bot, error)

var defaultBotFactory BotFactory = func(token string) (Bot, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &botWrapper{bot: bot}, nil
}

// Dialogue feeds user messages through the session layer.
type Dialogue interface {
	HandleMessage(ctx context.Context, chatID int64, text string) (session.Outcome, error)
}

// Retriever runs a complete filter against the trip store.
type Retriever interface {
	Run(ctx context.Context, f filter.Filter) (*retrieval.Result, error)
}

// Reporter renders a retrieval into workbook bytes plus a file name.
type Reporter interface {
	Generate(res *retrieval.Result) ([]byte, string, error)
}

// Service is the Telegram front end: it polls updates, gates them on the
// chat allow-list, drives the dialogue, and ships finished reports back
// as documents.
type Service struct {
	cfg      config.TelegramConfig
	factory  BotFactory
	bot      Bot
	sessions Dialogue
	engine   Retriever
	reports  Reporter
	obs      *observability.Observability
	logger   logger.Logger
	allowed  map[int64]bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewService(cfg config.TelegramConfig, sessions Dialogue, engine Retriever, reports Reporter, obs *observability.Observability, log logger.Logger) *Service {
	return NewServiceWithFactory(cfg, sessions, engine, reports, obs, log, defaultBotFactory)
}

func NewServiceWithFactory(cfg config.TelegramConfig, sessions Dialogue, engine Retriever, reports Reporter, obs *observability.Observability, log logger.Logger, factory BotFactory) *Service {
	allowed := make(map[int64]bool, len(cfg.AllowedChatIDs))
	for _, id := range cfg.AllowedChatIDs {
		allowed[id] = true
	}
	return &Service{
		cfg:      cfg,
		factory:  factory,
		sessions: sessions,
		engine:   engine,
		reports:  reports,
		obs:      obs,
		logger:   log.With(map[string]interface{}{"component": "telegram"}),
		allowed:  allowed,
	}
}

// Start authorizes the bot and launches the polling loop. It returns
// once polling is running; Stop shuts it down.
func (s *Service) Start(ctx context.Context) error {
	bot, err := s.factory(s.cfg.Token)
	if err != nil {
		return err
	}
	s.bot = bot
	s.logger.Info("authorized", map[string]interface{}{"username": bot.GetSelf().UserName})

	ctx, s.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = s.cfg.UpdateTimeout
	updates := bot.GetUpdatesChan(u)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil || update.Message.Text == "" {
					continue
				}
				msg := update.Message
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					s.handleMessage(ctx, msg)
				}()
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop halts polling and waits for in-flight messages to finish.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.bot != nil {
		s.bot.StopReceivingUpdates()
	}
	s.wg.Wait()
}

func (s *Service) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if len(s.allowed) > 0 && !s.allowed[chatID] {
		s.logger.Warn("message from unauthorized chat dropped", map[string]interface{}{
			"chatId": chatID,
		})
		return
	}

	text := stripMentions(msg.Text, s.bot.GetSelf().UserName)
	if text == "" {
		return
	}

	out, err := s.sessions.HandleMessage(ctx, chatID, text)
	if err != nil {
		switch stderrors.CodeOf(err) {
		case stderrors.ErrCodeSessionExpired:
			s.sendText(chatID, "That request timed out. Send your request again to start over.")
		default:
			s.sendText(chatID, "I couldn't read that. Try something like: MC trips for Area-3 in Jan 2025.")
		}
		return
	}

	if out.Prompt != "" {
		s.sendText(chatID, out.Prompt)
		return
	}
	if out.Filter == nil {
		return
	}

	s.sendText(chatID, "Got it, pulling the trips now. This can take a minute.")
	s.dispatch(ctx, chatID, *out.Filter)
}

func (s *Service) dispatch(ctx context.Context, chatID int64, f filter.Filter) {
	started := time.Now()
	status := "success"
	defer func() {
		s.obs.RecordRequestProcessed(ctx, status)
		s.obs.RecordRequestDuration(ctx, time.Since(started), status)
	}()

	res, err := s.engine.Run(ctx, f)
	if err != nil {
		status = "retrieval_failed"
		if stderrors.IsTransient(err) {
			s.sendText(chatID, "The data store is not responding right now. Please try again in a few minutes.")
		} else {
			s.sendText(chatID, "Something went wrong fetching the trips. The team has been notified.")
		}
		s.logger.Error("retrieval failed", map[string]interface{}{
			"chatId": chatID,
			"error":  err.Error(),
		})
		return
	}

	data, name, err := s.reports.Generate(res)
	if err != nil {
		status = "report_failed"
		s.sendText(chatID, "The trips were fetched but the report file could not be written. Please try again.")
		s.logger.Error("report generation failed", map[string]interface{}{
			"chatId": chatID,
			"error":  err.Error(),
		})
		return
	}

	s.sendDocument(chatID, name, data, res)
}

// stripMentions removes @botname references so group mentions parse the
// same as direct messages.
func stripMentions(text, botName string) string {
	if botName != "" {
		mention := "@" + botName
		for _, v := range []string{mention, strings.ToLower(mention)} {
			text = strings.ReplaceAll(text, v, " ")
		}
	}
	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}
