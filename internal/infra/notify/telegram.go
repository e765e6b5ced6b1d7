package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/stock-ledger/internal/domain/stock"
)

// Sender — часть *tgbotapi.BotAPI, которой пользуется приёмник.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram пишет в админский чат об изменениях остатков и о материалах,
// опустившихся ниже порога. Ошибки отправки только логируются.
type Telegram struct {
	api    Sender
	chatID int64
	log    *slog.Logger
}

func NewTelegram(api Sender, chatID int64, log *slog.Logger) *Telegram {
	return &Telegram{api: api, chatID: chatID, log: log}
}

func (t *Telegram) StockChanged(_ context.Context, ch stock.Change) {
	msg := tgbotapi.NewMessage(t.chatID, Render(ch))
	if _, err := t.api.Send(msg); err != nil {
		t.log.Error("telegram send failed", "op", ch.Op, "err", err)
	}
}

var opTitles = map[string]string{
	stock.OpCommitIn:       "📥 Приход",
	stock.OpCommitOut:      "📤 Расход",
	stock.OpTransfer:       "🔁 Перемещение",
	stock.OpReverse:        "↩️ Отмена движения",
	stock.OpCorrect:        "✏️ Исправление количества",
	stock.OpMerge:          "🧩 Слияние материалов",
	stock.OpCreateMaterial: "➕ Новый материал",
	stock.OpDeleteMaterial: "🗑 Материал удалён",
}

// Render — текст сообщения об изменении.
func Render(ch stock.Change) string {
	var b strings.Builder
	title, ok := opTitles[ch.Op]
	if !ok {
		title = ch.Op
	}
	b.WriteString(title)
	if ch.ReceiptID != "" {
		fmt.Fprintf(&b, " %s", ch.ReceiptID)
	}
	if n := len(ch.MovementIDs); n > 0 {
		fmt.Fprintf(&b, " (строк: %d)", n)
	}
	b.WriteString("\n")

	for _, m := range ch.Materials {
		fmt.Fprintf(&b, "• %s [%s] %s: %s %s\n", m.Name, m.ID, m.Workshop, stock.Format(m.Quantity), m.Unit)
	}
	for _, id := range ch.Removed {
		fmt.Fprintf(&b, "• удалён %s\n", id)
	}

	var low []string
	for _, m := range ch.Materials {
		if m.Low() {
			low = append(low, fmt.Sprintf("⚠️ %s (%s): %s < %s", m.Name, m.Workshop,
				stock.Format(m.Quantity), stock.Format(m.MinQuantity)))
		}
	}
	if len(low) > 0 {
		b.WriteString("Ниже порога:\n")
		b.WriteString(strings.Join(low, "\n"))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
