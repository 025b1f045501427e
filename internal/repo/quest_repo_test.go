package repo

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbourn/rewards-backend/internal/domain"
)

func TestClaimQuest_RespectsCooldown(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedAccount(t, db, 1001, "AAAAAAAA")

	t0 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cd := time.Minute

	ok, err := ClaimQuest(ctx, db, 1001, domain.QuestSubscribe, t0, cd, nil)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = ClaimQuest(ctx, db, 1001, domain.QuestSubscribe, t0.Add(30*time.Second), cd, nil)
	if err != nil || ok {
		t.Fatalf("claim inside cooldown: ok=%v err=%v; want false", ok, err)
	}
	// Other kinds are independent.
	ok, err = ClaimQuest(ctx, db, 1001, domain.QuestBotName, t0.Add(30*time.Second), cd, nil)
	if err != nil || !ok {
		t.Fatalf("bot_name claim: ok=%v err=%v", ok, err)
	}
	// Exactly at the boundary the claim is allowed.
	ok, err = ClaimQuest(ctx, db, 1001, domain.QuestSubscribe, t0.Add(cd), cd, nil)
	if err != nil || !ok {
		t.Fatalf("claim at boundary: ok=%v err=%v", ok, err)
	}

	qs, _ := GetQuestState(ctx, db, 1001)
	if qs.SubscribeCount != 2 || qs.BotNameCount != 1 {
		t.Fatalf("counts = %d/%d; want 2/1", qs.SubscribeCount, qs.BotNameCount)
	}
	if qs.SubscribeLastClaim == nil || !qs.SubscribeLastClaim.Equal(t0.Add(cd)) {
		t.Fatalf("last claim = %v; want %v", qs.SubscribeLastClaim, t0.Add(cd))
	}
}

func TestClaimQuest_ExtraColumns(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedAccount(t, db, 1001, "AAAAAAAA")

	ok, err := ClaimQuest(ctx, db, 1001, domain.QuestDailyBonus, time.Now(), time.Minute,
		map[string]any{"daily_bonus_reward": int64(25)})
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	qs, _ := GetQuestState(ctx, db, 1001)
	if qs.DailyBonusReward != 25 || qs.DailyBonusCount != 1 {
		t.Fatalf("unexpected state: %+v", qs)
	}
}

func TestClaimQuest_ConcurrentSingleWinner(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "claims.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if _, err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	ctx := context.Background()
	seedAccount(t, db, 1001, "AAAAAAAA")

	now := time.Now().UTC()
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ClaimQuest(ctx, db, 1001, domain.QuestRefLink, now, time.Minute, nil)
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("winners = %d; want 1", wins)
	}
}

func TestIncrementReferralCount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedAccount(t, db, 1001, "AAAAAAAA")

	for i := 0; i < 3; i++ {
		if err := IncrementReferralCount(ctx, db, 1001); err != nil {
			t.Fatalf("IncrementReferralCount: %v", err)
		}
	}
	qs, _ := GetQuestState(ctx, db, 1001)
	if qs.ReferralCount != 3 {
		t.Fatalf("referral_count = %d; want 3", qs.ReferralCount)
	}
}

func TestSaveQuestProgress_OnlyCallerOwnedFields(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedAccount(t, db, 1001, "AAAAAAAA")
	if _, err := AddBalance(ctx, db, 1001, 40); err != nil {
		t.Fatalf("AddBalance: %v", err)
	}

	cases, level := 4, 3
	if err := SaveQuestProgress(ctx, db, 1001, QuestProgress{CasesOpened: &cases, Level: &level}); err != nil {
		t.Fatalf("SaveQuestProgress: %v", err)
	}
	qs, _ := GetQuestState(ctx, db, 1001)
	if qs.CasesOpened != 4 || qs.Level != 3 || qs.Balance != 40 || qs.DailyBonusReward != 0 {
		t.Fatalf("unexpected state: %+v", qs)
	}

	if err := SaveQuestProgress(ctx, db, 4242, QuestProgress{Level: &level}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetQuestState_NotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := GetQuestState(context.Background(), db, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
