package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"solio-donations/internal/domain"
	"solio-donations/internal/storage"
)

// DonationStore is an in-memory implementation of storage.DonationStore.
type DonationStore struct {
	mu         sync.RWMutex
	projects   map[int64]*domain.Project
	tiers      map[int64]*domain.RewardTier
	milestones map[int64]*domain.Milestone
	donations  map[string]*domain.Donation // keyed by tx_signature
	nextID     int64
}

// NewDonationStore creates a new in-memory donation store.
func NewDonationStore() *DonationStore {
	return &DonationStore{
		projects:   make(map[int64]*domain.Project),
		tiers:      make(map[int64]*domain.RewardTier),
		milestones: make(map[int64]*domain.Milestone),
		donations:  make(map[string]*domain.Donation),
	}
}

var _ storage.DonationStore = (*DonationStore)(nil)

// CreateProject inserts p and assigns its ID.
func (s *DonationStore) CreateProject(_ context.Context, p *domain.Project) error {
	if p == nil || p.Title == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	p.ID = s.nextID
	projectCopy := *p
	s.projects[p.ID] = &projectCopy
	return nil
}

// GetProject returns a copy of the project.
func (s *DonationStore) GetProject(_ context.Context, id int64) (*domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	projectCopy := *p
	return &projectCopy, nil
}

// CreateRewardTier inserts t and assigns its ID.
func (s *DonationStore) CreateRewardTier(_ context.Context, t *domain.RewardTier) error {
	if t == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[t.ProjectID]; !ok {
		return storage.ErrNotFound
	}
	s.nextID++
	t.ID = s.nextID
	tierCopy := *t
	s.tiers[t.ID] = &tierCopy
	return nil
}

// GetRewardTier returns a copy of the tier.
func (s *DonationStore) GetRewardTier(_ context.Context, id int64) (*domain.RewardTier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tiers[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	tierCopy := *t
	return &tierCopy, nil
}

// CreateMilestone inserts m and assigns its ID.
func (s *DonationStore) CreateMilestone(_ context.Context, m *domain.Milestone) error {
	if m == nil || m.Title == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[m.ProjectID]; !ok {
		return storage.ErrNotFound
	}
	s.nextID++
	m.ID = s.nextID
	milestoneCopy := *m
	s.milestones[m.ID] = &milestoneCopy
	return nil
}

// ListMilestones returns copies of the project's milestones.
func (s *DonationStore) ListMilestones(_ context.Context, projectID int64) ([]domain.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Milestone
	for _, m := range s.milestones {
		if m.ProjectID == projectID {
			out = append(out, *m)
		}
	}
	domain.SortMilestones(out)
	return out, nil
}

// GetDonationBySignature returns a copy of the donation.
func (s *DonationStore) GetDonationBySignature(_ context.Context, signature string) (*domain.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.donations[signature]
	if !ok {
		return nil, storage.ErrNotFound
	}
	donationCopy := *d
	return &donationCopy, nil
}

// RecordDonation inserts d and updates the project, tier and milestones
// under one lock.
func (s *DonationStore) RecordDonation(_ context.Context, d *domain.Donation) (*domain.Project, []domain.Milestone, error) {
	if d == nil || d.TxSignature == "" {
		return nil, nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.donations[d.TxSignature]; exists {
		return nil, nil, storage.ErrDuplicateKey
	}
	p, ok := s.projects[d.ProjectID]
	if !ok {
		return nil, nil, storage.ErrNotFound
	}
	var tier *domain.RewardTier
	if d.RewardTierID != nil {
		tier, ok = s.tiers[*d.RewardTierID]
		if !ok {
			return nil, nil, storage.ErrNotFound
		}
		if !tier.Available() {
			return nil, nil, storage.ErrSoldOut
		}
	}

	if tier != nil {
		tier.ClaimedCount++
	}
	p.RaisedSOL = p.RaisedSOL.Add(d.AmountSOL)
	p.DonationCount++

	reachedAt := d.CreatedAt
	if reachedAt.IsZero() {
		reachedAt = time.Now().UTC()
	}
	var reached []domain.Milestone
	for _, m := range s.milestones {
		if m.ProjectID == p.ID && m.ReachedBy(p.RaisedSOL) {
			m.Reached = true
			m.ReachedAt = reachedAt
			reached = append(reached, *m)
		}
	}
	domain.SortMilestones(reached)

	donationCopy := *d
	s.donations[d.TxSignature] = &donationCopy

	projectCopy := *p
	return &projectCopy, reached, nil
}

// Stats sums confirmed donations.
func (s *DonationStore) Stats(_ context.Context) (*domain.DonationStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.DonationStats{TotalSOL: decimal.Zero, TotalProjects: int64(len(s.projects))}
	for _, d := range s.donations {
		if d.Status != domain.DonationConfirmed {
			continue
		}
		stats.TotalDonations++
		stats.TotalSOL = stats.TotalSOL.Add(d.AmountSOL)
	}
	return stats, nil
}
