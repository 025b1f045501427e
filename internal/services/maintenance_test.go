package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/rewards-backend/internal/domain"
	"github.com/tbourn/rewards-backend/internal/repo"
)

type fakeSender struct {
	to   int64
	text string
	err  error
}

func (f *fakeSender) Send(ctx context.Context, userID int64, text string) error {
	f.to, f.text = userID, text
	return f.err
}

func TestNotificationService_Notify(t *testing.T) {
	db := newSvcDB(t)
	ctx := context.Background()
	mustEnsure(t, &AccountService{DB: db}, 1001)

	sender := &fakeSender{}
	s := &NotificationService{DB: db, Sender: sender}

	if err := s.Notify(ctx, 1001, "  You won a case!  "); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if sender.to != 1001 || sender.text != "You won a case!" {
		t.Fatalf("unexpected send: %+v", sender)
	}

	long := strings.Repeat("я", maxMessageRunes+10)
	if err := s.Notify(ctx, 1001, long); err != nil {
		t.Fatalf("Notify long: %v", err)
	}
	if n := len([]rune(sender.text)); n != maxMessageRunes {
		t.Fatalf("text not clipped: %d runes", n)
	}

	if err := s.Notify(ctx, 1001, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if err := s.Notify(ctx, 4242, "hi"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	sender.err = errors.New("Forbidden: bot was blocked by the user")
	if err := s.Notify(ctx, 1001, "hi"); !errors.Is(err, ErrTelegramUnavailable) {
		t.Fatalf("expected ErrTelegramUnavailable, got %v", err)
	}

	disabled := &NotificationService{DB: db}
	if err := disabled.Notify(ctx, 1001, "hi"); !errors.Is(err, ErrTelegramUnavailable) {
		t.Fatalf("expected ErrTelegramUnavailable when disabled, got %v", err)
	}
}

func TestAdminService_Reset(t *testing.T) {
	db := newSvcDB(t)
	ctx := context.Background()
	accounts := &AccountService{DB: db}
	mustEnsure(t, accounts, 1001)
	if _, err := accounts.SetBalance(ctx, 1001, 99, ""); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}

	hints := &fakeHints{}
	admin := &AdminService{DB: db, Hints: hints}
	if err := admin.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !hints.purged {
		t.Fatalf("expected hints to be purged")
	}
	if _, err := repo.GetAccount(ctx, db, 1001); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("account survived reset: %v", err)
	}
	if n, _ := repo.CountLedger(ctx, db, 1001); n != 0 {
		t.Fatalf("ledger survived reset: %d", n)
	}
}

func TestScheduler_EveryAndPurgeJob(t *testing.T) {
	db := newSvcDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	if _, err := repo.CreateIdempotency(ctx, db, "1001", "/x", "old", 200, nil, time.Millisecond); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := repo.CreateIdempotency(ctx, db, "1001", "/x", "live", 200, nil, time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}

	job := PurgeIdempotencyJob(db, func() time.Time { return now.Add(time.Minute) })
	job()

	var left []domain.Idempotency
	db.Find(&left)
	if len(left) != 1 || left[0].Key != "live" {
		t.Fatalf("unexpected remaining keys: %+v", left)
	}

	s := NewScheduler()
	if _, err := s.Every(10*time.Millisecond, func() {}); err == nil {
		t.Fatalf("expected error for sub-second interval")
	}
	if _, err := s.Every(time.Hour, job); err != nil {
		t.Fatalf("Every: %v", err)
	}
	s.Start()
	s.Stop()
}
