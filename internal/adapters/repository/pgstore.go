package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"github.com/okian/fibertrace/internal/domain/model"
	"github.com/okian/fibertrace/pkg/metrics"
)

// PGStore is a Store backed by a Postgres table. The table is managed
// outside the service; every column is read as-is and missing columns are
// tolerated.
type PGStore struct {
	db    *sql.DB
	table string
}

// OpenPGStore connects to dsn and verifies the connection.
func OpenPGStore(ctx context.Context, dsn string, opts ...Option) (*PGStore, error) {
	o := newOptions(opts...)
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(o.maxOpenConns)
	db.SetMaxIdleConns(o.maxOpenConns)
	db.SetConnMaxLifetime(o.connLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewPGStore(db, opts...), nil
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB, opts ...Option) *PGStore {
	o := newOptions(opts...)
	return &PGStore{db: db, table: quoteTable(o.table)}
}

func (s *PGStore) List(ctx context.Context) ([]model.Record, error) {
	defer observe("list", time.Now())
	rows, err := s.db.QueryContext(ctx, "select * from "+s.table)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "query")
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out, err := scanRecords(rows)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "scan")
		return nil, fmt.Errorf("list samples: %w", err)
	}
	return out, nil
}

func (s *PGStore) Get(ctx context.Context, id string) (model.Record, error) {
	defer observe("get", time.Now())
	rows, err := s.db.QueryContext(ctx, "select * from "+s.table+" where id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("get sample: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("get sample: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out[0], nil
}

func (s *PGStore) Insert(ctx context.Context, rec model.Record) error {
	defer observe("insert", time.Now())
	if recordID(rec) == "" {
		return ErrMissingID
	}
	q, args := insertQuery(s.table, rec)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		metrics.RecordErrorByComponent("repository", "insert")
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

func (s *PGStore) Update(ctx context.Context, id string, rec model.Record) error {
	defer observe("update", time.Now())
	q, args := updateQuery(s.table, id, rec)
	if q == "" {
		// Nothing to set; still report unknown ids.
		_, err := s.Get(ctx, id)
		return err
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "update")
		return fmt.Errorf("update sample: %w", err)
	}
	return affected(res)
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	defer observe("delete", time.Now())
	res, err := s.db.ExecContext(ctx, "delete from "+s.table+" where id = $1", id)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "delete")
		return fmt.Errorf("delete sample: %w", err)
	}
	return affected(res)
}

func (s *PGStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "select count(*) from "+s.table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return n, nil
}

func (s *PGStore) Close() error {
	return s.db.Close()
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanRecords reads every row into a Record keyed by column name.
func scanRecords(rows *sql.Rows) ([]model.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []model.Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(model.Record, len(cols))
		for i, c := range cols {
			rec[strings.ToLower(c)] = vals[i]
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// insertQuery builds an insert of the known columns present in rec.
func insertQuery(table string, rec model.Record) (string, []any) {
	cols := presentColumns(rec, false)
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		names[i] = pgx.Identifier{c}.Sanitize()
		marks[i] = fmt.Sprintf("$%d", i+1)
		args[i] = rec[c]
	}
	q := fmt.Sprintf("insert into %s (%s) values (%s)",
		table, strings.Join(names, ", "), strings.Join(marks, ", "))
	return q, args
}

// updateQuery builds an update of the known columns present in rec. The id
// column is never updated. An empty query means there is nothing to set.
func updateQuery(table, id string, rec model.Record) (string, []any) {
	cols := presentColumns(rec, true)
	if len(cols) == 0 {
		return "", nil
	}
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{c}.Sanitize(), i+1)
		args = append(args, rec[c])
	}
	args = append(args, id)
	q := fmt.Sprintf("update %s set %s where id = $%d", table, strings.Join(sets, ", "), len(args))
	return q, args
}

// presentColumns returns the known columns set in rec in table order.
func presentColumns(rec model.Record, skipID bool) []string {
	order := make(map[string]int, len(model.Columns))
	for i, c := range model.Columns {
		order[c] = i
	}
	var cols []string
	for c := range rec {
		if _, ok := order[c]; !ok || (skipID && c == model.ColID) {
			continue
		}
		cols = append(cols, c)
	}
	sort.Slice(cols, func(i, j int) bool { return order[cols[i]] < order[cols[j]] })
	return cols
}

func quoteTable(table string) string {
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}

// IsNotFound reports whether err means the sample does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}
