package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/rewards-backend/internal/domain"
)

func strp(s string) *string { return &s }

func TestInsertAccount_ConflictOnIdOrCode(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	created, err := InsertAccount(ctx, db, &domain.Account{ID: 1001, ReferralCode: "AAAAAAAA", Username: strp("alice")})
	if err != nil || !created {
		t.Fatalf("first insert: created=%v err=%v", created, err)
	}

	// Same id: no row written, no error.
	created, err = InsertAccount(ctx, db, &domain.Account{ID: 1001, ReferralCode: "CCCCCCCC"})
	if err != nil || created {
		t.Fatalf("same id: created=%v err=%v; want false,nil", created, err)
	}
	// Same code on another id: also ignored, the id stays absent.
	created, err = InsertAccount(ctx, db, &domain.Account{ID: 1002, ReferralCode: "AAAAAAAA"})
	if err != nil || created {
		t.Fatalf("same code: created=%v err=%v; want false,nil", created, err)
	}
	if _, err := GetAccount(ctx, db, 1002); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected 1002 absent, got %v", err)
	}

	a, err := GetAccount(ctx, db, 1001)
	if err != nil || a.Username == nil || *a.Username != "alice" || a.ReferralCode != "AAAAAAAA" {
		t.Fatalf("unexpected stored account: %+v err=%v", a, err)
	}
}

func TestUpdateProfile_CoalescesFields(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedAccount(t, db, 1001, "AAAAAAAA")

	if err := UpdateProfile(ctx, db, 1001, ProfileFields{Username: strp("alice"), FirstName: strp("Alice")}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if err := UpdateProfile(ctx, db, 1001, ProfileFields{LastName: strp("Liddell")}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	a, _ := GetAccount(ctx, db, 1001)
	if *a.Username != "alice" || *a.FirstName != "Alice" || *a.LastName != "Liddell" || a.PhotoURL != nil {
		t.Fatalf("unexpected profile: %+v", a)
	}

	if err := UpdateProfile(ctx, db, 9999, ProfileFields{Username: strp("x")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := UpdateProfile(ctx, db, 9999, ProfileFields{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty update of missing account, got %v", err)
	}
}

func TestGetAccountWithReferralCount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedAccount(t, db, 1001, "AAAAAAAA")
	seedAccount(t, db, 1002, "BBBBBBBB")
	seedAccount(t, db, 1003, "CCCCCCCC")

	got, err := GetAccountWithReferralCount(ctx, db, 1001)
	if err != nil || got.ReferralCount != 0 || got.ID != 1001 {
		t.Fatalf("before referrals: %+v err=%v", got, err)
	}

	for _, id := range []int64{1002, 1003} {
		if _, err := CreateReferral(ctx, db, 1001, id); err != nil {
			t.Fatalf("CreateReferral: %v", err)
		}
	}
	got, err = GetAccountWithReferralCount(ctx, db, 1001)
	if err != nil || got.ReferralCount != 2 || got.ReferralCode != "AAAAAAAA" {
		t.Fatalf("after referrals: %+v err=%v", got, err)
	}

	if _, err := GetAccountWithReferralCount(ctx, db, 4242); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindAccountIDByReferralCode(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedAccount(t, db, 1001, "AAAAAAAA")

	id, err := FindAccountIDByReferralCode(ctx, db, "AAAAAAAA")
	if err != nil || id != 1001 {
		t.Fatalf("lookup = (%d, %v)", id, err)
	}
	if _, err := FindAccountIDByReferralCode(ctx, db, "ZZZZZZZZ"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetReferredBy_OnlyOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedAccount(t, db, 1002, "BBBBBBBB")

	ok, err := SetReferredBy(ctx, db, 1002, 1001)
	if err != nil || !ok {
		t.Fatalf("first set: ok=%v err=%v", ok, err)
	}
	ok, err = SetReferredBy(ctx, db, 1002, 1003)
	if err != nil || ok {
		t.Fatalf("second set: ok=%v err=%v; want false", ok, err)
	}
	a, _ := GetAccount(ctx, db, 1002)
	if a.ReferredBy == nil || *a.ReferredBy != 1001 {
		t.Fatalf("referred_by = %v; want 1001", a.ReferredBy)
	}
}

func TestBalanceWrites_MirrorIntoQuestState(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedAccount(t, db, 1001, "AAAAAAAA")

	bal, err := AddBalance(ctx, db, 1001, 100)
	if err != nil || bal != 100 {
		t.Fatalf("AddBalance = (%d, %v)", bal, err)
	}
	bal, err = AddBalance(ctx, db, 1001, -30)
	if err != nil || bal != 70 {
		t.Fatalf("AddBalance = (%d, %v)", bal, err)
	}
	qs, _ := GetQuestState(ctx, db, 1001)
	if qs.Balance != 70 {
		t.Fatalf("mirror = %d; want 70", qs.Balance)
	}

	prev, err := SetBalance(ctx, db, 1001, 500)
	if err != nil || prev != 70 {
		t.Fatalf("SetBalance = (%d, %v)", prev, err)
	}
	a, _ := GetAccount(ctx, db, 1001)
	qs, _ = GetQuestState(ctx, db, 1001)
	if a.Balance != 500 || qs.Balance != 500 {
		t.Fatalf("balance=%d mirror=%d; want 500", a.Balance, qs.Balance)
	}

	if _, err := AddBalance(ctx, db, 4242, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := SetBalance(ctx, db, 4242, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddBalance_CreatesMissingQuestState(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if _, err := InsertAccount(ctx, db, &domain.Account{ID: 7, ReferralCode: "QQQQQQQQ"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := AddBalance(ctx, db, 7, 5); err != nil {
		t.Fatalf("AddBalance: %v", err)
	}
	qs, err := GetQuestState(ctx, db, 7)
	if err != nil || qs.Balance != 5 || qs.Level != 1 {
		t.Fatalf("quest state = %+v err=%v", qs, err)
	}
}
