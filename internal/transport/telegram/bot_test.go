// internal/transport/telegram/bot_test.go
package telegram

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-report-bot/internal/common/config"
	stderrors "trip-report-bot/internal/common/errors"
	"trip-report-bot/internal/common/logger"
	"trip-report-bot/internal/filter"
	"trip-report-bot/internal/retrieval"
	"trip-report-bot/internal/session"
	"trip-report-bot/internal/store"
)

type fakeBot struct {
	mu      sync.Mutex
	updates chan tgbotapi.Update
	sent    []tgbotapi.Chattable
}

func newFakeBot() *fakeBot {
	return &fakeBot{updates: make(chan tgbotapi.Update, 16)}
}

func (b *fakeBot) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return b.updates
}

func (b *fakeBot) StopReceivingUpdates() { close(b.updates) }

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, c)
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) GetSelf() tgbotapi.User { return tgbotapi.User{UserName: "trip_report_bot"} }

func (b *fakeBot) sentMessages() []tgbotapi.Chattable {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), b.sent...)
}

func (b *fakeBot) push(chatID int64, text string) {
	b.updates <- tgbotapi.Update{Message: &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{ID: chatID},
	}}
}

type fakeDialogue struct {
	outcome session.Outcome
	err     error
}

func (d *fakeDialogue) HandleMessage(ctx context.Context, chatID int64, text string) (session.Outcome, error) {
	return d.outcome, d.err
}

type fakeRetriever struct {
	result *retrieval.Result
	err    error
}

func (r *fakeRetriever) Run(ctx context.Context, f filter.Filter) (*retrieval.Result, error) {
	return r.result, r.err
}

type fakeReporter struct {
	err error
}

func (r *fakeReporter) Generate(res *retrieval.Result) ([]byte, string, error) {
	if r.err != nil {
		return nil, "", r.err
	}
	return []byte("workbook"), "Trip_Report.xlsx", nil
}

func completeFilter(t *testing.T) filter.Filter {
	t.Helper()
	vocab := filter.MustDefault()
	p, err := filter.ResolvePeriod("jan 2025", time.Now(), time.UTC)
	require.NoError(t, err)
	return filter.Filter{Categories: vocab.Categories(), Areas: vocab.Areas(), Period: p}
}

func testTelegramConfig(allowed []int64) config.TelegramConfig {
	return config.TelegramConfig{
		Token:          "test-token",
		AllowedChatIDs: allowed,
		UpdateTimeout:  1,
	}
}

func startService(t *testing.T, allowed []int64, d Dialogue, r Retriever, rep Reporter) (*Service, *fakeBot) {
	t.Helper()
	bot := newFakeBot()
	factory := func(token string) (Bot, error) { return bot, nil }

	cfg := testTelegramConfig(allowed)
	svc := NewServiceWithFactory(cfg, d, r, rep, nil, logger.NewTestLogger(t), factory)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(svc.Stop)
	return svc, bot
}

func waitForSends(t *testing.T, bot *fakeBot, n int) []tgbotapi.Chattable {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(bot.sentMessages()) >= n
	}, 2*time.Second, 10*time.Millisecond)
	return bot.sentMessages()
}

func TestUnauthorizedChatIgnored(t *testing.T) {
	d := &fakeDialogue{outcome: session.Outcome{Prompt: "which period?"}}
	_, bot := startService(t, []int64{100}, d, &fakeRetriever{}, &fakeReporter{})

	bot.push(999, "MC trips jan 2025")
	bot.push(100, "MC trips")

	sent := waitForSends(t, bot, 1)
	require.Len(t, sent, 1)
	msg, ok := sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(100), msg.ChatID)
}

func TestPromptForwarded(t *testing.T) {
	d := &fakeDialogue{outcome: session.Outcome{Prompt: "Which areas?"}}
	_, bot := startService(t, nil, d, &fakeRetriever{}, &fakeReporter{})

	bot.push(7, "MC trips for jan")

	sent := waitForSends(t, bot, 1)
	msg := sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, "Which areas?", msg.Text)
}

func TestCompleteFilterDeliversReport(t *testing.T) {
	f := completeFilter(t)
	d := &fakeDialogue{outcome: session.Outcome{Filter: &f}}
	res := &retrieval.Result{Filter: f, Records: []store.TripRecord{{TripID: "T-1"}}}
	_, bot := startService(t, nil, d, &fakeRetriever{result: res}, &fakeReporter{})

	bot.push(7, "all trips all areas jan 2025")

	// Acknowledgement first, then the document.
	sent := waitForSends(t, bot, 2)
	_, isMsg := sent[0].(tgbotapi.MessageConfig)
	assert.True(t, isMsg)
	doc, isDoc := sent[1].(tgbotapi.DocumentConfig)
	require.True(t, isDoc)
	file, ok := doc.File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "Trip_Report.xlsx", file.Name)
	assert.Contains(t, doc.Caption, "1 completed trips")
}

func TestTransientRetrievalFailureMessage(t *testing.T) {
	f := completeFilter(t)
	d := &fakeDialogue{outcome: session.Outcome{Filter: &f}}
	r := &fakeRetriever{err: stderrors.NewTransientStoreError(fmt.Errorf("timeout"))}
	_, bot := startService(t, nil, d, r, &fakeReporter{})

	bot.push(7, "all trips all areas jan 2025")

	sent := waitForSends(t, bot, 2)
	msg := sent[1].(tgbotapi.MessageConfig)
	assert.Contains(t, msg.Text, "try again in a few minutes")
}

func TestExtractionFailureAsksToRephrase(t *testing.T) {
	d := &fakeDialogue{err: stderrors.NewExtractionError(fmt.Errorf("gibberish"))}
	_, bot := startService(t, nil, d, &fakeRetriever{}, &fakeReporter{})

	bot.push(7, "asdfgh")

	sent := waitForSends(t, bot, 1)
	msg := sent[0].(tgbotapi.MessageConfig)
	assert.Contains(t, msg.Text, "couldn't read that")
}

func TestSessionExpiredMessage(t *testing.T) {
	d := &fakeDialogue{err: stderrors.NewSessionExpiredError("s-1")}
	_, bot := startService(t, nil, d, &fakeRetriever{}, &fakeReporter{})

	bot.push(7, "and area 3")

	sent := waitForSends(t, bot, 1)
	msg := sent[0].(tgbotapi.MessageConfig)
	assert.Contains(t, msg.Text, "timed out")
}

func TestStripMentions(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"@trip_report_bot MC trips jan 2025", "MC trips jan 2025"},
		{"MC trips @trip_report_bot jan 2025", "MC trips jan 2025"},
		{"MC trips jan 2025", "MC trips jan 2025"},
		{"@trip_report_bot", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, stripMentions(tt.in, "trip_report_bot"))
		})
	}
}
