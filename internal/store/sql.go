package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/events"
	apperrors "github.com/Pale-blu/Chronologicon-Engine-Development/pkg/errors"
)

// sqliteTimeLayout is fixed width so that TEXT comparison orders instants.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const eventColumns = `event_id, event_name, description, start_date, end_date,
	duration_minutes, parent_event_id, research_value, metadata`

// dialect captures what differs between the SQL backends.
type dialect struct {
	name        string
	placeholder func(n int) string
	encodeTime  func(t time.Time) any
}

var postgresDialect = dialect{
	name:        "postgres",
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	encodeTime:  func(t time.Time) any { return t.UTC() },
}

var sqliteDialect = dialect{
	name:        "sqlite",
	placeholder: func(int) string { return "?" },
	encodeTime:  func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
}

// SQLStore implements events.Store over database/sql for both PostgreSQL and
// SQLite. Both engines accept ON CONFLICT ... DO NOTHING, which gives the
// per-key atomic insert the ingestion jobs rely on.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	closeFn func() error
	logger  *slog.Logger
}

func newSQLStore(db *sql.DB, d dialect, closeFn func() error) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: d,
		closeFn: closeFn,
		logger:  slog.Default().With("component", "event-store", "driver", d.name),
	}
}

func (s *SQLStore) InsertIfAbsent(ctx context.Context, e *events.Event) (bool, error) {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return false, fmt.Errorf("%w: marshaling metadata: %v", apperrors.ErrPersistence, err)
	}
	var parent sql.NullString
	if e.ParentEventID != nil {
		parent = sql.NullString{String: *e.ParentEventID, Valid: true}
	}

	query := fmt.Sprintf(`INSERT INTO historical_events (%s)
		VALUES (%s)
		ON CONFLICT (event_id) DO NOTHING`, eventColumns, s.placeholders(1, 9))
	res, err := s.db.ExecContext(ctx, query,
		e.EventID, e.EventName, e.Description,
		s.dialect.encodeTime(e.StartDate), s.dialect.encodeTime(e.EndDate),
		e.DurationMinutes, parent, e.ResearchValue, string(meta),
	)
	if err != nil {
		return false, fmt.Errorf("%w: inserting event %s: %v", apperrors.ErrPersistence, e.EventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: reading rows affected: %v", apperrors.ErrPersistence, err)
	}
	if n == 0 {
		s.logger.Debug("event already stored", "event_id", e.EventID)
	}
	return n > 0, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*events.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM historical_events WHERE event_id = %s`,
		eventColumns, s.dialect.placeholder(1))
	e, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, apperrors.ErrEventNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying event %s: %w", id, err)
	}
	return e, nil
}

func (s *SQLStore) Children(ctx context.Context, id string) ([]events.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM historical_events
		WHERE parent_event_id = %s
		ORDER BY start_date ASC, event_id ASC`, eventColumns, s.dialect.placeholder(1))
	return s.list(ctx, "children of "+id, query, id)
}

func (s *SQLStore) All(ctx context.Context) ([]events.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM historical_events
		ORDER BY start_date ASC, event_id ASC`, eventColumns)
	return s.list(ctx, "all events", query)
}

func (s *SQLStore) InRange(ctx context.Context, start, end time.Time) ([]events.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM historical_events
		WHERE start_date >= %s AND end_date <= %s
		ORDER BY start_date ASC, event_id ASC`,
		eventColumns, s.dialect.placeholder(1), s.dialect.placeholder(2))
	return s.list(ctx, "events in range", query,
		s.dialect.encodeTime(start), s.dialect.encodeTime(end))
}

func (s *SQLStore) Search(ctx context.Context, q events.SearchQuery) ([]events.Event, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}
	var (
		where []string
		args  []any
	)
	if q.Name != "" {
		args = append(args, escapeLike(strings.ToLower(q.Name)))
		where = append(where, fmt.Sprintf(
			`LOWER(event_name) LIKE '%%' || %s || '%%' ESCAPE '\'`, s.dialect.placeholder(len(args))))
	}
	if q.StartAfter != nil {
		args = append(args, s.dialect.encodeTime(*q.StartAfter))
		where = append(where, "start_date > "+s.dialect.placeholder(len(args)))
	}
	if q.EndBefore != nil {
		args = append(args, s.dialect.encodeTime(*q.EndBefore))
		where = append(where, "end_date < "+s.dialect.placeholder(len(args)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM historical_events", eventColumns)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" " + q.OrderClause())
	args = append(args, q.Limit, q.Offset())
	fmt.Fprintf(&b, " LIMIT %s OFFSET %s",
		s.dialect.placeholder(len(args)-1), s.dialect.placeholder(len(args)))

	return s.list(ctx, "search", b.String(), args...)
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.closeFn()
}

func (s *SQLStore) list(ctx context.Context, what, query string, args ...any) ([]events.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", what, err)
	}
	defer rows.Close()

	result := make([]events.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", what, err)
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", what, err)
	}
	return result, nil
}

func (s *SQLStore) placeholders(from, to int) string {
	parts := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		parts = append(parts, s.dialect.placeholder(i))
	}
	return strings.Join(parts, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*events.Event, error) {
	var (
		e      events.Event
		parent sql.NullString
		meta   []byte
	)
	err := row.Scan(
		&e.EventID, &e.EventName, &e.Description,
		timeColumn{&e.StartDate}, timeColumn{&e.EndDate},
		&e.DurationMinutes, &parent, &e.ResearchValue, &meta,
	)
	if err != nil {
		return nil, err
	}
	if parent.Valid {
		p := parent.String
		e.ParentEventID = &p
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", e.EventID, err)
		}
	}
	return &e, nil
}

// timeColumn scans TIMESTAMPTZ values from lib/pq and TEXT values written
// by the SQLite dialect into the same time.Time.
type timeColumn struct {
	t *time.Time
}

func (c timeColumn) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*c.t = v.UTC()
		return nil
	case string:
		return c.parse(v)
	case []byte:
		return c.parse(string(v))
	default:
		return fmt.Errorf("unsupported time column type %T", src)
	}
}

func (c timeColumn) parse(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parsing stored time %q: %w", s, err)
	}
	*c.t = t.UTC()
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
