package store

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/events"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/config"
	apperrors "github.com/Pale-blu/Chronologicon-Engine-Development/pkg/errors"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/postgres"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func strPtr(s string) *string { return &s }

func fixture() []events.Event {
	mk := func(id, name, start, end string, parent *string, line int) events.Event {
		st, en := ts(start), ts(end)
		return events.Event{
			EventID:         id,
			EventName:       name,
			Description:     name + " description",
			StartDate:       st,
			EndDate:         en,
			DurationMinutes: events.DurationMinutes(st, en),
			ParentEventID:   parent,
			ResearchValue:   "high",
			Metadata:        events.Metadata{Line: line},
		}
	}
	return []events.Event{
		mk("root", "Founding Era", "2023-01-01T10:00:00Z", "2023-01-01T11:30:00Z", nil, 2),
		mk("child-b", "Phase Beta", "2023-01-01T10:30:00Z", "2023-01-01T11:00:00Z", strPtr("root"), 3),
		mk("child-a", "Phase Alpha", "2023-01-01T10:30:00Z", "2023-01-01T10:45:00Z", strPtr("root"), 4),
		mk("late", "Late 100% Review", "2023-01-02T09:00:00Z", "2023-01-02T10:00:00Z", nil, 5),
	}
}

type storeFactory func(t *testing.T) events.Store

func backends(t *testing.T) map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) events.Store {
			return NewMemory()
		},
		"sqlite": func(t *testing.T) events.Store {
			s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "events.db"))
			require.NoError(t, err)
			return s
		},
		"postgres": func(t *testing.T) events.Store {
			return skipIfNoPostgres(t)
		},
	}
}

func seed(t *testing.T, s events.Store) {
	t.Helper()
	for _, e := range fixture() {
		e := e
		inserted, err := s.InsertIfAbsent(context.Background(), &e)
		require.NoError(t, err)
		require.True(t, inserted, "first insert of %s", e.EventID)
	}
}

func ids(list []events.Event) []string {
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.EventID
	}
	return out
}

func TestStoreContract(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			t.Cleanup(func() { s.Close() })
			seed(t, s)

			t.Run("insert is idempotent", func(t *testing.T) {
				dup := fixture()[0]
				dup.EventName = "changed"
				inserted, err := s.InsertIfAbsent(ctx, &dup)
				assert.NoError(t, err)
				assert.False(t, inserted)

				got, err := s.Get(ctx, "root")
				require.NoError(t, err)
				assert.Equal(t, "Founding Era", got.EventName)
			})

			t.Run("get round trips fields", func(t *testing.T) {
				got, err := s.Get(ctx, "child-b")
				require.NoError(t, err)
				want := fixture()[1]
				assert.Equal(t, want.EventID, got.EventID)
				assert.True(t, want.StartDate.Equal(got.StartDate))
				assert.True(t, want.EndDate.Equal(got.EndDate))
				assert.Equal(t, int64(30), got.DurationMinutes)
				require.NotNil(t, got.ParentEventID)
				assert.Equal(t, "root", *got.ParentEventID)
				assert.Equal(t, 3, got.Metadata.Line)
			})

			t.Run("get missing", func(t *testing.T) {
				_, err := s.Get(ctx, "nope")
				assert.ErrorIs(t, err, apperrors.ErrEventNotFound)
			})

			t.Run("children ordered by start then id", func(t *testing.T) {
				children, err := s.Children(ctx, "root")
				require.NoError(t, err)
				assert.Equal(t, []string{"child-a", "child-b"}, ids(children))

				none, err := s.Children(ctx, "late")
				require.NoError(t, err)
				assert.Empty(t, none)
			})

			t.Run("all ordered", func(t *testing.T) {
				all, err := s.All(ctx)
				require.NoError(t, err)
				assert.Equal(t, []string{"root", "child-a", "child-b", "late"}, ids(all))
			})

			t.Run("in range is inclusive", func(t *testing.T) {
				got, err := s.InRange(ctx, ts("2023-01-01T10:30:00Z"), ts("2023-01-01T11:00:00Z"))
				require.NoError(t, err)
				assert.Equal(t, []string{"child-a", "child-b"}, ids(got))
			})

			t.Run("search", func(t *testing.T) {
				after := ts("2023-01-01T10:00:00Z")
				got, err := s.Search(ctx, events.SearchQuery{Name: "PHASE", StartAfter: &after})
				require.NoError(t, err)
				assert.Equal(t, []string{"child-a", "child-b"}, ids(got))

				got, err = s.Search(ctx, events.SearchQuery{SortBy: "duration_minutes", SortDesc: true, Limit: 2})
				require.NoError(t, err)
				assert.Equal(t, []string{"root", "late"}, ids(got))

				got, err = s.Search(ctx, events.SearchQuery{Limit: 2, Page: 2})
				require.NoError(t, err)
				assert.Equal(t, []string{"child-b", "late"}, ids(got))

				got, err = s.Search(ctx, events.SearchQuery{Name: "100%"})
				require.NoError(t, err)
				assert.Equal(t, []string{"late"}, ids(got))

				_, err = s.Search(ctx, events.SearchQuery{SortBy: "1; DROP TABLE historical_events"})
				assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			})

			t.Run("concurrent inserts of one id", func(t *testing.T) {
				var (
					wg      sync.WaitGroup
					written atomic.Int32
				)
				for i := 0; i < 8; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						e := fixture()[3]
						e.EventID = "race"
						e.EventName = "race " + strconv.Itoa(i)
						ok, err := s.InsertIfAbsent(ctx, &e)
						assert.NoError(t, err)
						if ok {
							written.Add(1)
						}
					}(i)
				}
				wg.Wait()
				assert.Equal(t, int32(1), written.Load())
			})

			assert.NoError(t, s.Ping(ctx))
		})
	}
}

func TestOpenMemoryDriver(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Driver: "memory"}}
	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)
	assert.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) events.Store {
	t.Helper()
	if os.Getenv("TEST_POSTGRES_HOST") == "" {
		t.Skip("skipping postgres store test: TEST_POSTGRES_HOST not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := postgres.New(ctx, testPostgresConfig())
	if err != nil {
		t.Skipf("skipping postgres store test: postgres unavailable: %v", err)
	}
	s, err := NewPostgres(ctx, client)
	require.NoError(t, err)
	_, err = client.DB.ExecContext(ctx, `TRUNCATE historical_events`)
	require.NoError(t, err)
	return s
}

func testPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "chronologicon_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "chronologicon"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
