package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/cause_registry/internal/app/domain/cause"
	"github.com/R3E-Network/cause_registry/internal/app/storage"
)

// Store implements storage.CauseStore backed by PostgreSQL. Every
// transaction locks the single registry state row first, so registry
// mutations are serialised across processes.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ storage.CauseStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Open connects to dsn with the lib/pq driver.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

const causeColumns = `id, name, description, long_description, image_src, category, website,
	goal, wallet_address, is_active, featured, raised, donors_count, created_at, updated_at`

// causeRow mirrors the causes table. NUMERIC(20,0) columns are carried as
// text so the full uint64 range survives.
type causeRow struct {
	ID              uint64    `db:"id"`
	Name            string    `db:"name"`
	Description     string    `db:"description"`
	LongDescription string    `db:"long_description"`
	ImageSrc        string    `db:"image_src"`
	Category        string    `db:"category"`
	Website         string    `db:"website"`
	Goal            string    `db:"goal"`
	WalletAddress   string    `db:"wallet_address"`
	IsActive        bool      `db:"is_active"`
	Featured        bool      `db:"featured"`
	Raised          string    `db:"raised"`
	DonorsCount     string    `db:"donors_count"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r causeRow) toCause() (cause.Cause, error) {
	wallet, err := cause.ParseAddress(r.WalletAddress)
	if err != nil {
		return cause.Cause{}, fmt.Errorf("cause %d wallet: %w", r.ID, err)
	}
	var nums [3]uint64
	for i, s := range []string{r.Goal, r.Raised, r.DonorsCount} {
		if nums[i], err = strconv.ParseUint(s, 10, 64); err != nil {
			return cause.Cause{}, fmt.Errorf("cause %d amount %q: %w", r.ID, s, err)
		}
	}
	return cause.Cause{
		ID: r.ID,
		Params: cause.Params{
			Name:            r.Name,
			Description:     r.Description,
			LongDescription: r.LongDescription,
			ImageSrc:        r.ImageSrc,
			Category:        r.Category,
			Website:         r.Website,
			Goal:            nums[0],
			WalletAddress:   wallet,
			IsActive:        r.IsActive,
			Featured:        r.Featured,
		},
		Raised:      nums[1],
		DonorsCount: nums[2],
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

type eventRow struct {
	Seq           uint64    `db:"seq"`
	Kind          string    `db:"kind"`
	CauseID       uint64    `db:"cause_id"`
	Name          string    `db:"name"`
	Donor         string    `db:"donor"`
	Amount        string    `db:"amount"`
	PreviousOwner string    `db:"previous_owner"`
	NewOwner      string    `db:"new_owner"`
	Reference     string    `db:"reference"`
	CreatedAt     time.Time `db:"created_at"`
}

// --- CauseReader ------------------------------------------------------------

func (s *Store) GetCause(ctx context.Context, id uint64) (cause.Cause, error) {
	return getCause(ctx, s.db, id)
}

func (s *Store) ListCauseIDs(ctx context.Context) ([]uint64, error) {
	return listCauseIDs(ctx, s.db)
}

func (s *Store) GetOwner(ctx context.Context) (util.Uint160, bool, error) {
	return getOwner(ctx, s.db)
}

func (s *Store) ListEvents(ctx context.Context, after uint64, limit int) ([]cause.Event, error) {
	return listEvents(ctx, s.db, after, limit)
}

// --- RunInTx ----------------------------------------------------------------

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx storage.CauseTx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT id FROM cause_registry_state WHERE id = 1 FOR UPDATE`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("lock registry state: %w", err)
	}

	if err := fn(ctx, &pgTx{tx: tx, now: s.now}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTx struct {
	tx  *sqlx.Tx
	now func() time.Time
}

var _ storage.CauseTx = (*pgTx)(nil)

func (t *pgTx) GetCause(ctx context.Context, id uint64) (cause.Cause, error) {
	return getCause(ctx, t.tx, id)
}

func (t *pgTx) ListCauseIDs(ctx context.Context) ([]uint64, error) {
	return listCauseIDs(ctx, t.tx)
}

func (t *pgTx) GetOwner(ctx context.Context) (util.Uint160, bool, error) {
	return getOwner(ctx, t.tx)
}

func (t *pgTx) ListEvents(ctx context.Context, after uint64, limit int) ([]cause.Event, error) {
	return listEvents(ctx, t.tx, after, limit)
}

func (t *pgTx) NextCauseID(ctx context.Context) (uint64, error) {
	var id uint64
	err := t.tx.QueryRowxContext(ctx, `
		UPDATE cause_registry_state SET next_id = next_id + 1
		WHERE id = 1
		RETURNING next_id
	`).Scan(&id)
	return id, err
}

func (t *pgTx) InsertCause(ctx context.Context, c cause.Cause) error {
	now := t.now()
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO causes (`+causeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
	`, c.ID, c.Name, c.Description, c.LongDescription, c.ImageSrc, c.Category, c.Website,
		strconv.FormatUint(c.Goal, 10), cause.FormatAddress(c.WalletAddress), c.IsActive, c.Featured,
		strconv.FormatUint(c.Raised, 10), strconv.FormatUint(c.DonorsCount, 10), now)
	return err
}

func (t *pgTx) UpdateCause(ctx context.Context, c cause.Cause) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE causes
		SET name = $2, description = $3, long_description = $4, image_src = $5, category = $6,
			website = $7, goal = $8, wallet_address = $9, is_active = $10, featured = $11,
			raised = $12, donors_count = $13, updated_at = $14
		WHERE id = $1
	`, c.ID, c.Name, c.Description, c.LongDescription, c.ImageSrc, c.Category, c.Website,
		strconv.FormatUint(c.Goal, 10), cause.FormatAddress(c.WalletAddress), c.IsActive, c.Featured,
		strconv.FormatUint(c.Raised, 10), strconv.FormatUint(c.DonorsCount, 10), t.now())
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("cause %d: %w", c.ID, storage.ErrNotFound)
	}
	return nil
}

func (t *pgTx) MarkDonor(ctx context.Context, causeID uint64, donor util.Uint160) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO cause_donors (cause_id, donor, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (cause_id, donor) DO NOTHING
	`, causeID, cause.FormatAddress(donor), t.now())
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (t *pgTx) SetOwner(ctx context.Context, owner util.Uint160) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE cause_registry_state SET owner = $1 WHERE id = 1`,
		cause.FormatAddress(owner))
	return err
}

func (t *pgTx) AppendEvent(ctx context.Context, ev cause.Event) (cause.Event, error) {
	if err := t.tx.QueryRowxContext(ctx, `
		UPDATE cause_registry_state SET event_seq = event_seq + 1
		WHERE id = 1
		RETURNING event_seq
	`).Scan(&ev.Seq); err != nil {
		return cause.Event{}, fmt.Errorf("allocate event seq: %w", err)
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = t.now()
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO registry_events (seq, kind, cause_id, name, donor, amount, previous_owner, new_owner, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, ev.Seq, string(ev.Kind), ev.CauseID, ev.Name, ev.Donor, strconv.FormatUint(ev.Amount, 10),
		ev.PreviousOwner, ev.NewOwner, ev.Reference, ev.CreatedAt)
	if err != nil {
		return cause.Event{}, err
	}
	return ev, nil
}

// --- shared queries ---------------------------------------------------------

func getCause(ctx context.Context, q sqlx.QueryerContext, id uint64) (cause.Cause, error) {
	var row causeRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+causeColumns+` FROM causes WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cause.Cause{}, fmt.Errorf("cause %d: %w", id, storage.ErrNotFound)
		}
		return cause.Cause{}, err
	}
	return row.toCause()
}

func listCauseIDs(ctx context.Context, q sqlx.QueryerContext) ([]uint64, error) {
	ids := make([]uint64, 0)
	if err := sqlx.SelectContext(ctx, q, &ids, `SELECT id FROM causes ORDER BY id`); err != nil {
		return nil, err
	}
	return ids, nil
}

func getOwner(ctx context.Context, q sqlx.QueryerContext) (util.Uint160, bool, error) {
	var owner sql.NullString
	err := q.QueryRowxContext(ctx, `SELECT owner FROM cause_registry_state WHERE id = 1`).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return util.Uint160{}, false, nil
		}
		return util.Uint160{}, false, err
	}
	if !owner.Valid {
		return util.Uint160{}, false, nil
	}
	h, err := cause.ParseAddress(owner.String)
	if err != nil {
		return util.Uint160{}, false, fmt.Errorf("stored owner: %w", err)
	}
	return h, true, nil
}

func listEvents(ctx context.Context, q sqlx.QueryerContext, after uint64, limit int) ([]cause.Event, error) {
	// LIMIT NULL means no limit
	lim := sql.NullInt64{Int64: int64(limit), Valid: limit > 0}
	var rows []eventRow
	err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT seq, kind, cause_id, name, donor, amount, previous_owner, new_owner, reference, created_at
		FROM registry_events
		WHERE seq > $1
		ORDER BY seq
		LIMIT $2
	`, after, lim)
	if err != nil {
		return nil, err
	}

	events := make([]cause.Event, 0, len(rows))
	for _, r := range rows {
		amount, err := strconv.ParseUint(r.Amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("event %d amount %q: %w", r.Seq, r.Amount, err)
		}
		events = append(events, cause.Event{
			Seq:           r.Seq,
			Kind:          cause.EventKind(r.Kind),
			CauseID:       r.CauseID,
			Name:          r.Name,
			Donor:         r.Donor,
			Amount:        amount,
			PreviousOwner: r.PreviousOwner,
			NewOwner:      r.NewOwner,
			Reference:     r.Reference,
			CreatedAt:     r.CreatedAt,
		})
	}
	return events, nil
}
