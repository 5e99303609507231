package domain

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// DonationStatus is the lifecycle state of a recorded donation.
type DonationStatus string

const (
	DonationConfirmed DonationStatus = "confirmed"
)

// Project is a fundraising campaign that accepts donations.
type Project struct {
	ID            int64
	Title         string
	GoalSOL       decimal.Decimal
	RaisedSOL     decimal.Decimal
	DonationCount int64
	Active        bool
	EndDate       time.Time
}

// AcceptsDonations reports whether the project is open at now.
func (p *Project) AcceptsDonations(now time.Time) bool {
	return p.Active && (p.EndDate.IsZero() || now.Before(p.EndDate))
}

// ProgressPercent is raised over goal, capped at 100 for display.
func (p *Project) ProgressPercent() float64 {
	if p.GoalSOL.IsZero() {
		return 0
	}
	pct, _ := p.RaisedSOL.Div(p.GoalSOL).Mul(decimal.NewFromInt(100)).Float64()
	if pct > 100 {
		return 100
	}
	return pct
}

// RewardTier is a perk unlocked by donating at least MinAmountSOL.
// MaxClaims nil means unlimited.
type RewardTier struct {
	ID           int64
	ProjectID    int64
	Title        string
	MinAmountSOL decimal.Decimal
	MaxClaims    *int64
	ClaimedCount int64
}

// Available reports whether the tier can still be claimed.
func (t *RewardTier) Available() bool {
	return t.MaxClaims == nil || t.ClaimedCount < *t.MaxClaims
}

// Milestone is a stretch goal of a project. It is reached, once, when the
// project's raised total first meets AmountSOL.
type Milestone struct {
	ID        int64
	ProjectID int64
	Title     string
	AmountSOL decimal.Decimal
	SortOrder int
	Reached   bool
	ReachedAt time.Time
}

// ReachedBy reports whether a raised total newly reaches the milestone.
func (m *Milestone) ReachedBy(raised decimal.Decimal) bool {
	return !m.Reached && raised.GreaterThanOrEqual(m.AmountSOL)
}

// SortMilestones orders milestones by sort order, then amount, then ID.
func SortMilestones(ms []Milestone) {
	slices.SortFunc(ms, func(a, b Milestone) int {
		if c := cmp.Compare(a.SortOrder, b.SortOrder); c != 0 {
			return c
		}
		if c := a.AmountSOL.Cmp(b.AmountSOL); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Donation is one credited on-chain transfer.
type Donation struct {
	ID           string
	ProjectID    int64
	UserWallet   string
	DonorWallet  string
	AmountSOL    decimal.Decimal
	PlatformFee  decimal.Decimal
	Message      string
	RewardTierID *int64
	DonorEmail   string
	TxSignature  string
	Status       DonationStatus
	CreatedAt    time.Time
}

// SameTransfer reports whether a repeated verification request describes
// this donation again.
func (d *Donation) SameTransfer(projectID int64, donor string, amount decimal.Decimal) bool {
	return d.ProjectID == projectID && d.DonorWallet == donor && d.AmountSOL.Equal(amount)
}

// DonationRecord is the backend's acknowledgement of a credited donation.
type DonationRecord struct {
	DonationID       string
	ProjectID        int64
	RaisedSOL        decimal.Decimal
	ProgressPercent  float64
	DonationCount    int64
	AlreadyProcessed bool
}

// DonationStats summarizes all confirmed donations.
type DonationStats struct {
	TotalDonations int64
	TotalSOL       decimal.Decimal
	TotalProjects  int64
}
