package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

// Repo — хранилище журнала в Postgres. Каждая единица работы идёт в
// транзакции SERIALIZABLE; конфликты сериализации повторяются.
type Repo struct {
	pool    *pgxpool.Pool
	retries uint64
	backoff time.Duration
}

func NewRepo(pool *pgxpool.Pool, retries int) *Repo {
	if retries < 0 {
		retries = 0
	}
	return &Repo{pool: pool, retries: uint64(retries), backoff: 10 * time.Millisecond}
}

func (r *Repo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	b := retry.WithMaxRetries(r.retries, retry.WithJitterPercent(20, retry.NewExponential(r.backoff)))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := r.once(ctx, fn)
		if retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (r *Repo) once(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// 40001 serialization_failure, 40P01 deadlock_detected
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

type pgTx struct{ tx pgx.Tx }

const materialCols = `id, name, category, unit, quantity, opening_quantity, min_quantity,
	workshop, origin, note, image, updated_at`

func scanMaterial(row pgx.Row) (Material, error) {
	var m Material
	err := row.Scan(
		&m.ID,
		&m.Name,
		&m.Category,
		&m.Unit,
		&m.Quantity,
		&m.OpeningQuantity,
		&m.MinQuantity,
		&m.Workshop,
		&m.Origin,
		&m.Note,
		&m.Image,
		&m.UpdatedAt,
	)
	return m, err
}

func lookup(row pgx.Row) (Lookup, error) {
	m, err := scanMaterial(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return NotFound, nil
	}
	if err != nil {
		return NotFound, err
	}
	return Found(m), nil
}

func (t *pgTx) GetMaterial(ctx context.Context, id string) (Lookup, error) {
	return lookup(t.tx.QueryRow(ctx, `SELECT `+materialCols+` FROM materials WHERE id = $1`, id))
}

func (t *pgTx) FindMaterial(ctx context.Context, workshop, name, origin string) (Lookup, error) {
	return lookup(t.tx.QueryRow(ctx, `
		SELECT `+materialCols+`
		FROM materials
		WHERE workshop = $1 AND name = $2 AND origin = $3
		ORDER BY id
		LIMIT 1
	`, workshop, name, origin))
}

func (t *pgTx) FindMaterialByName(ctx context.Context, workshop, name string) (Lookup, error) {
	return lookup(t.tx.QueryRow(ctx, `
		SELECT `+materialCols+`
		FROM materials
		WHERE workshop = $1 AND name = $2
		ORDER BY id
		LIMIT 1
	`, workshop, name))
}

func (t *pgTx) ListMaterials(ctx context.Context, workshop string) ([]Material, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+materialCols+`
		FROM materials
		WHERE $1 = '' OR workshop = $1
		ORDER BY id
	`, workshop)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertMaterial(ctx context.Context, m Material) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO materials (id, name, category, unit, quantity, opening_quantity, min_quantity,
		                       workshop, origin, note, image)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, m.ID, m.Name, m.Category, m.Unit, m.Quantity, m.OpeningQuantity, m.MinQuantity,
		m.Workshop, m.Origin, m.Note, m.Image)
	return err
}

func (t *pgTx) DeleteMaterials(ctx context.Context, ids []string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM materials WHERE id = ANY($1)`, ids)
	return err
}

// NextMaterialSeq: строка-счётчик цеха заводится при первом обращении со
// значением max+1 по существующим идентификаторам, дальше растёт атомарно.
func (t *pgTx) NextMaterialSeq(ctx context.Context, prefix, workshop string) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		INSERT INTO material_counters (prefix, workshop, last_value)
		VALUES ($1, $2, (
			SELECT COALESCE(MAX(CAST(split_part(id, '/', 3) AS INTEGER)), 0) + 1
			FROM materials
			WHERE split_part(id, '/', 1) = $1
			  AND split_part(id, '/', 2) = $2
			  AND split_part(id, '/', 3) ~ '^[0-9]+$'
		))
		ON CONFLICT (prefix, workshop)
		DO UPDATE SET last_value = material_counters.last_value + 1
		RETURNING last_value
	`, prefix, workshop).Scan(&n)
	return n, err
}

func (t *pgTx) Increase(ctx context.Context, id string, q decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE materials SET quantity = quantity + $2, updated_at = now()
		WHERE id = $1
	`, id, q)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("material %s: no rows updated", id)
	}
	return nil
}

// DecreaseIfSufficient — одно условное UPDATE, без отдельного чтения.
func (t *pgTx) DecreaseIfSufficient(ctx context.Context, id string, q decimal.Decimal) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE materials SET quantity = quantity - $2, updated_at = now()
		WHERE id = $1 AND quantity >= $2
	`, id, q)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const movementCols = `id, receipt_id, material_id, material_name, kind, quantity, business_date,
	time_of_day, actor, workshop, COALESCE(target_workshop, ''), COALESCE(target_material_id, ''),
	order_code, note, created_at`

func scanMovement(row pgx.Row) (Movement, error) {
	var mv Movement
	err := row.Scan(
		&mv.ID,
		&mv.ReceiptID,
		&mv.MaterialID,
		&mv.MaterialName,
		&mv.Kind,
		&mv.Quantity,
		&mv.Date,
		&mv.Time,
		&mv.Actor,
		&mv.Workshop,
		&mv.TargetWorkshop,
		&mv.TargetMaterialID,
		&mv.OrderCode,
		&mv.Note,
		&mv.CreatedAt,
	)
	return mv, err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (t *pgTx) InsertMovement(ctx context.Context, mv Movement) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO movements (id, receipt_id, material_id, material_name, kind, quantity,
		                       business_date, time_of_day, actor, workshop,
		                       target_workshop, target_material_id, order_code, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, mv.ID, mv.ReceiptID, mv.MaterialID, mv.MaterialName, string(mv.Kind), mv.Quantity,
		mv.Date, mv.Time, mv.Actor, mv.Workshop,
		nullable(mv.TargetWorkshop), nullable(mv.TargetMaterialID), mv.OrderCode, mv.Note)
	return err
}

func (t *pgTx) GetMovement(ctx context.Context, id string) (Movement, bool, error) {
	mv, err := scanMovement(t.tx.QueryRow(ctx, `SELECT `+movementCols+` FROM movements WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, false, nil
	}
	if err != nil {
		return Movement{}, false, err
	}
	return mv, true, nil
}

func (t *pgTx) ListMovements(ctx context.Context, f MovementFilter) ([]Movement, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := t.tx.Query(ctx, `
		SELECT `+movementCols+`
		FROM movements
		WHERE ($1 = '' OR material_id = $1 OR target_material_id = $1)
		  AND ($2 = '' OR receipt_id = $2)
		  AND ($3 = '' OR workshop = $3 OR target_workshop = $3)
		ORDER BY business_date, time_of_day, created_at
		LIMIT $4
	`, f.MaterialID, f.ReceiptID, f.Workshop, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Movement
	for rows.Next() {
		mv, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, mv)
	}
	return out, rows.Err()
}

func (t *pgTx) DeleteMovement(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM movements WHERE id = $1`, id)
	return err
}

func (t *pgTx) SetMovementQuantity(ctx context.Context, id string, q decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `UPDATE movements SET quantity = $2 WHERE id = $1`, id, q)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("movement %s: no rows updated", id)
	}
	return nil
}

func (t *pgTx) CountMovements(ctx context.Context, materialID string) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM movements
		WHERE material_id = $1 OR target_material_id = $1
	`, materialID).Scan(&n)
	return n, err
}

func (t *pgTx) NewerMovement(ctx context.Context, mv Movement) (Movement, bool, error) {
	newer, err := scanMovement(t.tx.QueryRow(ctx, `
		SELECT `+movementCols+`
		FROM movements
		WHERE id <> $1
		  AND (material_id = ANY($2) OR target_material_id = ANY($2))
		  AND (business_date > $3 OR (business_date = $3 AND time_of_day > $4))
		ORDER BY business_date DESC, time_of_day DESC
		LIMIT 1
	`, mv.ID, mv.Touches(), mv.Date, mv.Time))
	if errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, false, nil
	}
	if err != nil {
		return Movement{}, false, err
	}
	return newer, true, nil
}

func (t *pgTx) RetargetMovements(ctx context.Context, sourceIDs []string, newID, newName string) (int, error) {
	primary, err := t.tx.Exec(ctx, `
		UPDATE movements SET material_id = $2, material_name = $3
		WHERE material_id = ANY($1)
	`, sourceIDs, newID, newName)
	if err != nil {
		return 0, err
	}
	// направление перемещения переписывается отдельно: строка может
	// ссылаться на источник слияния только как на приёмник
	target, err := t.tx.Exec(ctx, `
		UPDATE movements SET target_material_id = $2
		WHERE target_material_id = ANY($1)
	`, sourceIDs, newID)
	if err != nil {
		return 0, err
	}
	return int(primary.RowsAffected() + target.RowsAffected()), nil
}

const signedEffectSQL = `
	CASE
		WHEN mv.kind = 'IN' AND mv.material_id = m.id THEN mv.quantity
		WHEN mv.kind IN ('OUT', 'TRANSFER') AND mv.material_id = m.id THEN -mv.quantity
		ELSE 0
	END
	+ CASE WHEN mv.kind = 'TRANSFER' AND mv.target_material_id = m.id THEN mv.quantity ELSE 0 END`

func (t *pgTx) SignedTotal(ctx context.Context, materialID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(`+signedEffectSQL+`), 0)
		FROM (SELECT $1::text AS id) m
		JOIN movements mv ON mv.material_id = m.id OR mv.target_material_id = m.id
	`, materialID).Scan(&sum)
	return Round(sum), err
}

func (t *pgTx) LedgerTotals(ctx context.Context) ([]MaterialTotal, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT m.id, m.workshop, m.quantity, m.opening_quantity,
		       COALESCE(SUM(`+signedEffectSQL+`), 0)
		FROM materials m
		LEFT JOIN movements mv ON mv.material_id = m.id OR mv.target_material_id = m.id
		GROUP BY m.id, m.workshop, m.quantity, m.opening_quantity
		ORDER BY m.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MaterialTotal
	for rows.Next() {
		var mt MaterialTotal
		if err := rows.Scan(&mt.MaterialID, &mt.Workshop, &mt.Quantity, &mt.Opening, &mt.Signed); err != nil {
			return nil, err
		}
		out = append(out, mt)
	}
	return out, rows.Err()
}
