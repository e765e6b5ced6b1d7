package notify

import (
	"context"
	"log/slog"

	"github.com/Spok95/stock-ledger/internal/domain/stock"
)

// Multi рассылает изменение во все приёмники по порядку.
type Multi []stock.Notifier

func (m Multi) StockChanged(ctx context.Context, ch stock.Change) {
	for _, n := range m {
		n.StockChanged(ctx, ch)
	}
}

type Log struct{ log *slog.Logger }

func NewLog(log *slog.Logger) *Log { return &Log{log: log} }

func (l *Log) StockChanged(_ context.Context, ch stock.Change) {
	ids := make([]string, 0, len(ch.Materials))
	for _, m := range ch.Materials {
		ids = append(ids, m.ID)
	}
	l.log.Info("stock changed",
		"op", ch.Op,
		"receipt_id", ch.ReceiptID,
		"movements", ch.MovementIDs,
		"materials", ids,
		"removed", ch.Removed,
	)
}
