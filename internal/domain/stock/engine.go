package stock

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

type Clock func() time.Time

// Notifier получает сигнал после каждой успешной изменяющей операции.
type Notifier interface {
	StockChanged(ctx context.Context, ch Change)
}

type Observer interface {
	ObserveOp(op string, err error, elapsed time.Duration)
	ObserveDiscrepancies(n int)
}

// Change описывает результат зафиксированной операции.
type Change struct {
	Op          string
	ReceiptID   string
	MovementIDs []string
	Materials   []Material // состояние после операции
	Removed     []string
	At          time.Time
}

func (c Change) Empty() bool {
	return len(c.MovementIDs) == 0 && len(c.Materials) == 0 && len(c.Removed) == 0
}

const (
	OpCommitIn       = "commit_in"
	OpCommitOut      = "commit_out"
	OpTransfer       = "transfer"
	OpReverse        = "reverse"
	OpCorrect        = "correct"
	OpMerge          = "merge"
	OpCreateMaterial = "create_material"
	OpDeleteMaterial = "delete_material"
	OpAllocateID     = "allocate_id"
)

type Engine struct {
	store    Store
	log      *slog.Logger
	now      Clock
	loc      *time.Location
	prefix   string
	notifier Notifier
	observer Observer
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

func WithClock(c Clock) Option { return func(e *Engine) { e.now = c } }

// WithLocation задаёт часовой пояс учётной даты.
func WithLocation(loc *time.Location) Option { return func(e *Engine) { e.loc = loc } }

func WithPrefix(p string) Option {
	return func(e *Engine) {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			e.prefix = p
		}
	}
}

func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

func WithObserver(o Observer) Option { return func(e *Engine) { e.observer = o } }

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		log:      slog.New(slog.DiscardHandler),
		now:      time.Now,
		loc:      time.UTC,
		prefix:   DefaultPrefix,
		notifier: nopNotifier{},
		observer: nopObserver{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

type nopNotifier struct{}

func (nopNotifier) StockChanged(context.Context, Change) {}

type nopObserver struct{}

func (nopObserver) ObserveOp(string, error, time.Duration) {}
func (nopObserver) ObserveDiscrepancies(int)               {}

// mutate выполняет изменяющую операцию одной транзакцией. ch заполняется
// заново на каждой попытке: хранилище может повторить fn.
func (e *Engine) mutate(ctx context.Context, op string, fn func(ctx context.Context, tx Tx, ch *Change) error) (Change, error) {
	started := time.Now()
	var ch Change
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		ch = Change{Op: op}
		return fn(ctx, tx, &ch)
	})
	e.observer.ObserveOp(op, err, time.Since(started))
	if err != nil {
		if Code(err) == "internal" {
			e.log.Error("stock operation failed", "op", op, "err", err)
		} else {
			e.log.Warn("stock operation refused", "op", op, "reason", Code(err), "err", err)
		}
		return Change{}, err
	}
	if ch.Empty() {
		return ch, nil
	}
	ch.At = e.now()
	e.log.Info("stock operation committed",
		"op", op,
		"receipt_id", ch.ReceiptID,
		"movements", len(ch.MovementIDs),
		"materials", len(ch.Materials),
	)
	e.notifier.StockChanged(ctx, ch)
	return ch, nil
}

// read — транзакция только для чтения, без метрик и оповещений.
func (e *Engine) read(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return e.store.WithinTx(ctx, fn)
}

// snapshot перечитывает материалы после изменений для оповещения.
func snapshot(ctx context.Context, tx Tx, ch *Change, ids ...string) error {
	seen := make(map[string]bool, len(ch.Materials))
	for _, m := range ch.Materials {
		seen[m.ID] = true
	}
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		l, err := tx.GetMaterial(ctx, id)
		if err != nil {
			return err
		}
		if l.Found {
			ch.Materials = append(ch.Materials, l.Material)
		}
	}
	return nil
}

// businessDay — полночь дня t в часовом поясе журнала.
func (e *Engine) businessDay(t time.Time) time.Time {
	t = t.In(e.loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, e.loc)
}
