// internal/transport/telegram/send.go
package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"trip-report-bot/internal/retrieval"
)

func (s *Service) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := s.bot.Send(msg); err != nil {
		s.logger.Error("send message failed", map[string]interface{}{
			"chatId": chatID,
			"error":  err.Error(),
		})
	}
}

func (s *Service) sendDocument(chatID int64, name string, data []byte, res *retrieval.Result) {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = caption(res)
	if _, err := s.bot.Send(doc); err != nil {
		s.logger.Error("send document failed", map[string]interface{}{
			"chatId": chatID,
			"file":   name,
			"error":  err.Error(),
		})
		s.sendText(chatID, "The report was built but could not be uploaded. Please try again.")
		return
	}
	s.logger.Info("report delivered", map[string]interface{}{
		"chatId":  chatID,
		"file":    name,
		"records": len(res.Records),
	})
}

func caption(res *retrieval.Result) string {
	if len(res.Records) == 0 {
		return "No completed trips matched your request."
	}
	period := ""
	if res.Filter.Period != nil {
		period = " for " + res.Filter.Period.Label()
	}
	return fmt.Sprintf("%d completed trips%s across %d areas.", len(res.Records), period, len(res.Filter.Areas))
}
