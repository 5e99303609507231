package storage

import (
	"context"
	"time"

	"solio-donations/internal/domain"
)

// ProjectStore provides access to projects and their reward tiers.
type ProjectStore interface {
	// CreateProject inserts p and sets p.ID.
	CreateProject(ctx context.Context, p *domain.Project) error

	// GetProject returns ErrNotFound if the project does not exist.
	GetProject(ctx context.Context, id int64) (*domain.Project, error)

	// CreateRewardTier inserts t and sets t.ID.
	CreateRewardTier(ctx context.Context, t *domain.RewardTier) error

	// GetRewardTier returns ErrNotFound if the tier does not exist.
	GetRewardTier(ctx context.Context, id int64) (*domain.RewardTier, error)

	// CreateMilestone inserts m and sets m.ID. Returns ErrNotFound if the
	// project does not exist.
	CreateMilestone(ctx context.Context, m *domain.Milestone) error

	// ListMilestones returns a project's milestones ordered by sort order,
	// then amount.
	ListMilestones(ctx context.Context, projectID int64) ([]domain.Milestone, error)
}

// DonationStore records credited donations.
type DonationStore interface {
	ProjectStore

	// GetDonationBySignature returns ErrNotFound if the signature was never credited.
	GetDonationBySignature(ctx context.Context, signature string) (*domain.Donation, error)

	// RecordDonation inserts d, claims its reward tier, adds the amount to
	// the project totals and marks the milestones the new total reaches, in
	// one transaction. Returns the updated project and the milestones
	// reached by this donation, in ListMilestones order.
	// Returns ErrDuplicateKey if d.TxSignature exists and ErrSoldOut if the
	// tier filled up in the meantime; nothing is written in either case.
	RecordDonation(ctx context.Context, d *domain.Donation) (*domain.Project, []domain.Milestone, error)

	// Stats summarizes confirmed donations.
	Stats(ctx context.Context) (*domain.DonationStats, error)
}

// NonceStore keeps outstanding sign-in nonces, at most one per address.
type NonceStore interface {
	// Put stores n, replacing any earlier nonce for n.Address.
	Put(ctx context.Context, n *domain.WalletNonce) error

	// Consume removes the nonce for address. It returns ErrNotFound unless
	// the stored nonce equals nonce and has not expired at now. A nonce can
	// be consumed at most once.
	Consume(ctx context.Context, address, nonce string, now time.Time) error
}

// UserStore provides access to wallet-login accounts.
type UserStore interface {
	// UpsertWalletUser returns the user for address, creating it on first login.
	UpsertWalletUser(ctx context.Context, address string) (*domain.WalletUser, error)
}
