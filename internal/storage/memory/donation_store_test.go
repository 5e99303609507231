package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"solio-donations/internal/domain"
	"solio-donations/internal/storage"
)

func newProject(t *testing.T, store *DonationStore) *domain.Project {
	t.Helper()
	p := &domain.Project{Title: "Well", GoalSOL: decimal.NewFromInt(10), Active: true}
	if err := store.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	return p
}

func donation(projectID int64, sig, amount string) *domain.Donation {
	return &domain.Donation{
		ID:          sig + "-id",
		ProjectID:   projectID,
		DonorWallet: "donor",
		AmountSOL:   decimal.RequireFromString(amount),
		TxSignature: sig,
		Status:      domain.DonationConfirmed,
	}
}

func TestDonationStore_RecordUpdatesProject(t *testing.T) {
	store := NewDonationStore()
	ctx := context.Background()
	p := newProject(t, store)

	updated, _, err := store.RecordDonation(ctx, donation(p.ID, "sig1", "1.5"))
	if err != nil {
		t.Fatalf("RecordDonation failed: %v", err)
	}
	if updated.RaisedSOL.String() != "1.5" || updated.DonationCount != 1 {
		t.Errorf("project totals: got %s/%d", updated.RaisedSOL, updated.DonationCount)
	}

	got, err := store.GetDonationBySignature(ctx, "sig1")
	if err != nil {
		t.Fatalf("GetDonationBySignature failed: %v", err)
	}
	if !got.AmountSOL.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("amount mismatch: got %s", got.AmountSOL)
	}

	stored, _ := store.GetProject(ctx, p.ID)
	if stored.ProgressPercent() != 15 {
		t.Errorf("progress: got %v, want 15", stored.ProgressPercent())
	}
}

func TestDonationStore_DuplicateSignature(t *testing.T) {
	store := NewDonationStore()
	ctx := context.Background()
	p := newProject(t, store)

	if _, _, err := store.RecordDonation(ctx, donation(p.ID, "sig1", "1")); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	_, _, err := store.RecordDonation(ctx, donation(p.ID, "sig1", "1"))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	stored, _ := store.GetProject(ctx, p.ID)
	if stored.DonationCount != 1 {
		t.Errorf("duplicate changed totals: count %d", stored.DonationCount)
	}
}

func TestDonationStore_RewardTierSoldOut(t *testing.T) {
	store := NewDonationStore()
	ctx := context.Background()
	p := newProject(t, store)

	one := int64(1)
	tier := &domain.RewardTier{ProjectID: p.ID, Title: "Sticker", MinAmountSOL: decimal.NewFromInt(1), MaxClaims: &one}
	if err := store.CreateRewardTier(ctx, tier); err != nil {
		t.Fatalf("CreateRewardTier failed: %v", err)
	}

	first := donation(p.ID, "sig1", "1")
	first.RewardTierID = &tier.ID
	if _, _, err := store.RecordDonation(ctx, first); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}

	second := donation(p.ID, "sig2", "1")
	second.RewardTierID = &tier.ID
	if _, _, err := store.RecordDonation(ctx, second); !errors.Is(err, storage.ErrSoldOut) {
		t.Errorf("expected ErrSoldOut, got %v", err)
	}
	if _, err := store.GetDonationBySignature(ctx, "sig2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("sold-out donation was stored")
	}

	got, _ := store.GetRewardTier(ctx, tier.ID)
	if got.ClaimedCount != 1 || got.Available() {
		t.Errorf("tier: claimed %d, available %v", got.ClaimedCount, got.Available())
	}
}

func TestDonationStore_NotFound(t *testing.T) {
	store := NewDonationStore()
	ctx := context.Background()

	if _, err := store.GetProject(ctx, 42); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetProject: expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetDonationBySignature(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetDonationBySignature: expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.RecordDonation(ctx, donation(42, "sig", "1")); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("RecordDonation: expected ErrNotFound, got %v", err)
	}
}

func TestDonationStore_Stats(t *testing.T) {
	store := NewDonationStore()
	ctx := context.Background()
	a := newProject(t, store)
	b := newProject(t, store)

	store.RecordDonation(ctx, donation(a.ID, "s1", "0.5"))
	store.RecordDonation(ctx, donation(b.ID, "s2", "2.25"))

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalDonations != 2 || stats.TotalSOL.String() != "2.75" || stats.TotalProjects != 2 {
		t.Errorf("stats: %+v", stats)
	}
}

func TestDonationStore_ConcurrentSameSignature(t *testing.T) {
	store := NewDonationStore()
	ctx := context.Background()
	p := newProject(t, store)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := store.RecordDonation(ctx, donation(p.ID, "same", "1")); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("expected exactly one credit, got %d", succeeded)
	}
	stored, _ := store.GetProject(ctx, p.ID)
	if !stored.RaisedSOL.Equal(decimal.NewFromInt(1)) {
		t.Errorf("raised: got %s, want 1", stored.RaisedSOL)
	}
}

func TestDonationStore_MilestonesReachedOnce(t *testing.T) {
	store := NewDonationStore()
	ctx := context.Background()
	p := newProject(t, store)

	for i, amount := range []string{"5", "2", "8"} {
		m := &domain.Milestone{ProjectID: p.ID, Title: "goal " + amount, AmountSOL: decimal.RequireFromString(amount), SortOrder: i}
		if err := store.CreateMilestone(ctx, m); err != nil {
			t.Fatalf("CreateMilestone failed: %v", err)
		}
	}
	if err := store.CreateMilestone(ctx, &domain.Milestone{ProjectID: 99, Title: "orphan"}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("CreateMilestone: expected ErrNotFound, got %v", err)
	}

	_, reached, err := store.RecordDonation(ctx, donation(p.ID, "s1", "1"))
	if err != nil {
		t.Fatalf("RecordDonation failed: %v", err)
	}
	if len(reached) != 0 {
		t.Errorf("reached %d milestones at 1 SOL, want 0", len(reached))
	}

	d := donation(p.ID, "s2", "4.5")
	_, reached, err = store.RecordDonation(ctx, d)
	if err != nil {
		t.Fatalf("RecordDonation failed: %v", err)
	}
	if len(reached) != 2 || reached[0].Title != "goal 5" || reached[1].Title != "goal 2" {
		t.Fatalf("reached = %+v, want goal 5 then goal 2", reached)
	}
	if !reached[0].Reached || reached[0].ReachedAt.IsZero() {
		t.Errorf("milestone not marked: %+v", reached[0])
	}

	_, reached, _ = store.RecordDonation(ctx, donation(p.ID, "s3", "0.1"))
	if len(reached) != 0 {
		t.Errorf("milestones reached twice: %+v", reached)
	}

	all, err := store.ListMilestones(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListMilestones failed: %v", err)
	}
	if len(all) != 3 || !all[0].Reached || !all[1].Reached || all[2].Reached {
		t.Errorf("milestones = %+v", all)
	}
}
