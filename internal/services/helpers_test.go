package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/rewards-backend/internal/domain"
	"github.com/tbourn/rewards-backend/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := repo.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// newFileSvcDB opens a migrated on-disk database with WAL and a busy timeout,
// for tests that write concurrently.
func newFileSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "rewards.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	if _, err := repo.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// fixedCodes returns a code generator that yields codes in order and then
// repeats the last one.
func fixedCodes(codes ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return c, nil
	}
}

func mustEnsure(t *testing.T, s *AccountService, id int64) *domain.Account {
	t.Helper()
	a, _, err := s.Ensure(context.Background(), id, ProfileUpdate{})
	if err != nil {
		t.Fatalf("Ensure(%d): %v", id, err)
	}
	return a
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeChecker struct {
	subscribed bool
	bio        string
	err        error
	calls      int
}

func (f *fakeChecker) IsSubscribed(ctx context.Context, userID int64) (bool, error) {
	f.calls++
	return f.subscribed, f.err
}

func (f *fakeChecker) Bio(ctx context.Context, userID int64) (string, error) {
	f.calls++
	return f.bio, f.err
}

type fakeHints struct {
	mu      sync.Mutex
	left    map[string]time.Duration
	marks   int
	purged  bool
	readErr error
}

func hintKey(id int64, kind domain.QuestKind) string { return fmt.Sprintf("%d:%s", id, kind) }

func (f *fakeHints) Remaining(ctx context.Context, id int64, kind domain.QuestKind) (time.Duration, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return 0, false, f.readErr
	}
	d, ok := f.left[hintKey(id, kind)]
	return d, ok, nil
}

func (f *fakeHints) Mark(ctx context.Context, id int64, kind domain.QuestKind, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.left == nil {
		f.left = map[string]time.Duration{}
	}
	f.left[hintKey(id, kind)] = ttl
	f.marks++
	return nil
}

func (f *fakeHints) Purge(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = nil
	f.purged = true
	return nil
}

func i64(v int64) *int64 { return &v }
func intp(v int) *int { return &v }
func strp(v string) *string { return &v }
