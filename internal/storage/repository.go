package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/insightdelivered/statement-ingest/internal/layout"
	"github.com/insightdelivered/statement-ingest/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const dateLayout = "2006-01-02"

// StoredSettings is one statement_type_settings row.
type StoredSettings struct {
	StatementType layout.StatementType `json:"statement_type"`
	Settings      layout.Settings      `json:"settings"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database directory if needed, opens the database and
// applies pending migrations.
func Open(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, now: time.Now}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) timestamp() string {
	return formatTime(r.now())
}

// GetSettings returns the layout stored for t. A missing row or an empty
// stored string yields the empty layout, not an error.
func (r *Repository) GetSettings(ctx context.Context, t layout.StatementType) (layout.Settings, error) {
	var raw string
	err := r.db.QueryRowContext(ctx,
		`SELECT settings_json FROM statement_type_settings WHERE lower(statement_type) = ?`,
		strings.ToLower(t.String()),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return layout.Empty(), nil
	}
	if err != nil {
		return layout.Settings{}, fmt.Errorf("get settings for %s: %w", t, err)
	}

	s, err := layout.Decode(raw)
	if err != nil {
		return layout.Settings{}, fmt.Errorf("settings for %s: %w", t, err)
	}
	return s, nil
}

// PutSettings inserts or replaces the layout for t.
func (r *Repository) PutSettings(ctx context.Context, t layout.StatementType, s layout.Settings) error {
	raw, err := layout.Encode(s)
	if err != nil {
		return err
	}

	ts := r.timestamp()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO statement_type_settings (statement_type, settings_json, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(statement_type) DO UPDATE SET
			settings_json = excluded.settings_json,
			updated_at = excluded.updated_at`,
		strings.ToLower(t.String()), raw, ts, ts)
	if err != nil {
		return fmt.Errorf("put settings for %s: %w", t, err)
	}
	return nil
}

// ListSettings returns every stored layout ordered by statement type.
func (r *Repository) ListSettings(ctx context.Context) ([]StoredSettings, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT statement_type, settings_json, updated_at FROM statement_type_settings ORDER BY statement_type`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var out []StoredSettings
	for rows.Next() {
		var typ, raw, updated string
		if err := rows.Scan(&typ, &raw, &updated); err != nil {
			return nil, fmt.Errorf("scan settings: %w", err)
		}
		s, err := layout.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("settings for %s: %w", typ, err)
		}
		out = append(out, StoredSettings{
			StatementType: layout.StatementType(typ),
			Settings:      s,
			UpdatedAt:     parseTime(updated),
		})
	}
	return out, rows.Err()
}

// SavePersonalData updates p when p.ID names an existing row and inserts it
// otherwise.
func (r *Repository) SavePersonalData(ctx context.Context, p models.PersonalData) (models.PersonalData, error) {
	ts := r.timestamp()
	args := []any{p.FirstName, p.LastName, p.DOB.Format(dateLayout), p.Phone, p.Email, p.Address, p.PIN}

	if p.ID > 0 {
		res, err := r.db.ExecContext(ctx, `
			UPDATE personal_data
			SET first_name = ?, last_name = ?, dob = ?, phone = ?, email = ?, address = ?, pin = ?, updated_at = ?
			WHERE id = ?`,
			append(args, ts, p.ID)...)
		if err != nil {
			return models.PersonalData{}, fmt.Errorf("update personal data %d: %w", p.ID, err)
		}
		if affected(res) {
			return r.GetPersonalData(ctx, p.ID)
		}
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO personal_data (first_name, last_name, dob, phone, email, address, pin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append(args, ts, ts)...)
	if err != nil {
		return models.PersonalData{}, fmt.Errorf("insert personal data: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.PersonalData{}, fmt.Errorf("insert personal data: %w", err)
	}
	return r.GetPersonalData(ctx, id)
}

func (r *Repository) GetPersonalData(ctx context.Context, id int64) (models.PersonalData, error) {
	var (
		p                              models.PersonalData
		dob, created, updated          string
		phone, email, address, pinCode sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, dob, phone, email, address, pin, created_at, updated_at
		FROM personal_data WHERE id = ?`, id,
	).Scan(&p.ID, &p.FirstName, &p.LastName, &dob, &phone, &email, &address, &pinCode, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PersonalData{}, fmt.Errorf("personal data %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.PersonalData{}, fmt.Errorf("get personal data %d: %w", id, err)
	}

	p.DOB, _ = time.Parse(dateLayout, dob)
	p.Phone, p.Email, p.Address, p.PIN = phone.String, email.String, address.String, pinCode.String
	p.CreatedAt, p.UpdatedAt = parseTime(created), parseTime(updated)
	return p, nil
}

// SaveCategory updates c when c.ID names an existing row and inserts it
// otherwise. A parent that does not exist is rejected by the foreign key.
func (r *Repository) SaveCategory(ctx context.Context, c models.Category) (models.Category, error) {
	ts := r.timestamp()
	parent := sql.NullInt64{}
	if c.ParentID != nil {
		parent = sql.NullInt64{Int64: *c.ParentID, Valid: true}
	}

	if c.ID > 0 {
		res, err := r.db.ExecContext(ctx, `
			UPDATE finance_item_category SET name = ?, description = ?, parent_id = ?, updated_at = ?
			WHERE id = ?`,
			c.Name, c.Description, parent, ts, c.ID)
		if err != nil {
			return models.Category{}, fmt.Errorf("update category %d: %w", c.ID, err)
		}
		if affected(res) {
			return r.GetCategory(ctx, c.ID)
		}
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO finance_item_category (name, description, parent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.Name, c.Description, parent, ts, ts)
	if err != nil {
		return models.Category{}, fmt.Errorf("insert category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return r.GetCategory(ctx, id)
}

func (r *Repository) GetCategory(ctx context.Context, id int64) (models.Category, error) {
	var (
		c                models.Category
		description      sql.NullString
		parent           sql.NullInt64
		created, updated string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, parent_id, created_at, updated_at
		FROM finance_item_category WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &description, &parent, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Category{}, fmt.Errorf("category %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Category{}, fmt.Errorf("get category %d: %w", id, err)
	}

	c.Description = description.String
	if parent.Valid {
		c.ParentID = &parent.Int64
	}
	c.CreatedAt, c.UpdatedAt = parseTime(created), parseTime(updated)
	return c, nil
}

// SaveTransaction updates t when t.ID names an existing row and inserts it
// otherwise.
func (r *Repository) SaveTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	return saveTransaction(ctx, r.db, t, r.timestamp())
}

// SaveTransactions stores a batch atomically: either every record is
// written or none is.
func (r *Repository) SaveTransactions(ctx context.Context, txns []models.Transaction) ([]models.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	ts := r.timestamp()
	saved := make([]models.Transaction, 0, len(txns))
	for _, t := range txns {
		s, err := saveTransaction(ctx, tx, t, ts)
		if err != nil {
			return nil, err
		}
		saved = append(saved, s)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return saved, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveTransaction(ctx context.Context, db execer, t models.Transaction, ts string) (models.Transaction, error) {
	args := []any{formatTime(t.RecordDate), t.Description, t.Amount.StringFixed(2), t.CategoryID, t.PersonalDataID}

	if t.ID > 0 {
		res, err := db.ExecContext(ctx, `
			UPDATE finance_item
			SET record_date = ?, description = ?, amount = ?, finance_item_category_id = ?, personal_data_id = ?, updated_at = ?
			WHERE id = ?`,
			append(args, ts, t.ID)...)
		if err != nil {
			return models.Transaction{}, fmt.Errorf("update finance item %d: %w", t.ID, err)
		}
		if affected(res) {
			return t, nil
		}
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO finance_item (record_date, description, amount, finance_item_category_id, personal_data_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		append(args, ts, ts)...)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("insert finance item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Transaction{}, fmt.Errorf("insert finance item: %w", err)
	}
	t.ID = id
	return t, nil
}

// ListTransactions returns the records owned by personalDataID, oldest first.
func (r *Repository) ListTransactions(ctx context.Context, personalDataID int64) ([]models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, record_date, description, amount, finance_item_category_id, personal_data_id
		FROM finance_item WHERE personal_data_id = ?
		ORDER BY record_date, id`, personalDataID)
	if err != nil {
		return nil, fmt.Errorf("list finance items: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var (
			t            models.Transaction
			date, amount string
		)
		if err := rows.Scan(&t.ID, &date, &t.Description, &amount, &t.CategoryID, &t.PersonalDataID); err != nil {
			return nil, fmt.Errorf("scan finance item: %w", err)
		}
		t.RecordDate = parseTime(date)
		t.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("finance item %d amount %q: %w", t.ID, amount, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func affected(res sql.Result) bool {
	n, err := res.RowsAffected()
	return err == nil && n > 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
