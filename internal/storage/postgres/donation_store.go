package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solio-donations/internal/domain"
	"solio-donations/internal/storage"
)

// DonationStore implements storage.DonationStore using PostgreSQL.
// Amounts travel as text so that NUMERIC values keep every digit.
type DonationStore struct {
	pool *Pool
}

// NewDonationStore creates a new DonationStore.
func NewDonationStore(pool *Pool) *DonationStore {
	return &DonationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.DonationStore = (*DonationStore)(nil)

// CreateProject inserts p and sets its ID.
func (s *DonationStore) CreateProject(ctx context.Context, p *domain.Project) error {
	if p == nil || p.Title == "" {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO projects (title, goal_sol, raised_sol, donation_count, active, end_date)
		VALUES ($1, $2::numeric, $3::numeric, $4, $5, $6)
		RETURNING id
	`
	err := s.pool.QueryRow(ctx, query,
		p.Title,
		p.GoalSOL.String(),
		p.RaisedSOL.String(),
		p.DonationCount,
		p.Active,
		nullTime(p.EndDate),
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

const projectColumns = `id, title, goal_sol::text, raised_sol::text, donation_count, active, end_date`

// GetProject retrieves a project by ID. Returns ErrNotFound if not exists.
func (s *DonationStore) GetProject(ctx context.Context, id int64) (*domain.Project, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	p, err := scanProject(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// CreateRewardTier inserts t and sets its ID.
func (s *DonationStore) CreateRewardTier(ctx context.Context, t *domain.RewardTier) error {
	if t == nil {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO reward_tiers (project_id, title, min_amount_sol, max_claims, claimed_count)
		VALUES ($1, $2, $3::numeric, $4, $5)
		RETURNING id
	`
	err := s.pool.QueryRow(ctx, query,
		t.ProjectID,
		t.Title,
		t.MinAmountSOL.String(),
		t.MaxClaims,
		t.ClaimedCount,
	).Scan(&t.ID)
	if err != nil {
		if isForeignKeyError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("insert reward tier: %w", err)
	}
	return nil
}

// GetRewardTier retrieves a tier by ID. Returns ErrNotFound if not exists.
func (s *DonationStore) GetRewardTier(ctx context.Context, id int64) (*domain.RewardTier, error) {
	query := `
		SELECT id, project_id, title, min_amount_sol::text, max_claims, claimed_count
		FROM reward_tiers
		WHERE id = $1
	`
	var (
		t   domain.RewardTier
		min string
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(&t.ID, &t.ProjectID, &t.Title, &min, &t.MaxClaims, &t.ClaimedCount)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get reward tier: %w", err)
	}
	if t.MinAmountSOL, err = decimal.NewFromString(min); err != nil {
		return nil, fmt.Errorf("parse min amount: %w", err)
	}
	return &t, nil
}

// CreateMilestone inserts m and sets its ID.
func (s *DonationStore) CreateMilestone(ctx context.Context, m *domain.Milestone) error {
	if m == nil || m.Title == "" {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO milestones (project_id, title, amount_sol, sort_order, reached, reached_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6)
		RETURNING id
	`
	err := s.pool.QueryRow(ctx, query,
		m.ProjectID,
		m.Title,
		m.AmountSOL.String(),
		m.SortOrder,
		m.Reached,
		nullTime(m.ReachedAt),
	).Scan(&m.ID)
	if err != nil {
		if isForeignKeyError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("insert milestone: %w", err)
	}
	return nil
}

const milestoneColumns = `id, project_id, title, amount_sol::text, sort_order, reached, reached_at`

// ListMilestones returns the project's milestones in display order.
func (s *DonationStore) ListMilestones(ctx context.Context, projectID int64) ([]domain.Milestone, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+milestoneColumns+`
		FROM milestones
		WHERE project_id = $1
		ORDER BY sort_order, amount_sol, id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	return scanMilestones(rows)
}

// GetDonationBySignature retrieves a donation. Returns ErrNotFound if not exists.
func (s *DonationStore) GetDonationBySignature(ctx context.Context, signature string) (*domain.Donation, error) {
	query := `
		SELECT id, project_id, COALESCE(user_wallet, ''), donor_wallet, amount_sol::text, platform_fee::text,
		       COALESCE(message, ''), reward_tier_id, COALESCE(donor_email, ''), tx_signature, status, created_at
		FROM donations
		WHERE tx_signature = $1
	`
	var (
		d           domain.Donation
		amount, fee string
		status      string
	)
	err := s.pool.QueryRow(ctx, query, signature).Scan(
		&d.ID, &d.ProjectID, &d.UserWallet, &d.DonorWallet, &amount, &fee,
		&d.Message, &d.RewardTierID, &d.DonorEmail, &d.TxSignature, &status, &d.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get donation: %w", err)
	}
	d.Status = domain.DonationStatus(status)
	if d.AmountSOL, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if d.PlatformFee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("parse fee: %w", err)
	}
	return &d, nil
}

// RecordDonation inserts d, claims its tier, bumps the project totals and
// marks reached milestones in a single transaction.
func (s *DonationStore) RecordDonation(ctx context.Context, d *domain.Donation) (*domain.Project, []domain.Milestone, error) {
	if d == nil || d.TxSignature == "" {
		return nil, nil, storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO donations (
			id, project_id, user_wallet, donor_wallet, amount_sol, platform_fee,
			message, reward_tier_id, donor_email, tx_signature, status, created_at
		) VALUES ($1, $2, NULLIF($3, ''), $4, $5::numeric, $6::numeric, NULLIF($7, ''), $8, NULLIF($9, ''), $10, $11, $12)
	`
	_, err = tx.Exec(ctx, insert,
		d.ID, d.ProjectID, d.UserWallet, d.DonorWallet, d.AmountSOL.String(), d.PlatformFee.String(),
		d.Message, d.RewardTierID, d.DonorEmail, d.TxSignature, string(d.Status), createdAt(d.CreatedAt),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, nil, storage.ErrDuplicateKey
		}
		if isForeignKeyError(err) {
			return nil, nil, storage.ErrNotFound
		}
		return nil, nil, fmt.Errorf("insert donation: %w", err)
	}

	if d.RewardTierID != nil {
		tag, err := tx.Exec(ctx, `
			UPDATE reward_tiers SET claimed_count = claimed_count + 1
			WHERE id = $1 AND (max_claims IS NULL OR claimed_count < max_claims)
		`, *d.RewardTierID)
		if err != nil {
			return nil, nil, fmt.Errorf("claim reward tier: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, nil, storage.ErrSoldOut
		}
	}

	row := tx.QueryRow(ctx, `
		UPDATE projects SET raised_sol = raised_sol + $2::numeric, donation_count = donation_count + 1
		WHERE id = $1
		RETURNING `+projectColumns, d.ProjectID, d.AmountSOL.String())
	p, err := scanProject(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil, storage.ErrNotFound
		}
		return nil, nil, fmt.Errorf("update project totals: %w", err)
	}

	rows, err := tx.Query(ctx, `
		UPDATE milestones SET reached = TRUE, reached_at = $3
		WHERE project_id = $1 AND NOT reached AND amount_sol <= $2::numeric
		RETURNING `+milestoneColumns, p.ID, p.RaisedSOL.String(), createdAt(d.CreatedAt))
	if err != nil {
		return nil, nil, fmt.Errorf("mark milestones: %w", err)
	}
	reached, err := scanMilestones(rows)
	if err != nil {
		return nil, nil, err
	}
	domain.SortMilestones(reached)

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit donation: %w", err)
	}
	return p, reached, nil
}

// Stats summarizes confirmed donations.
func (s *DonationStore) Stats(ctx context.Context) (*domain.DonationStats, error) {
	var (
		stats domain.DonationStats
		total string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM donations WHERE status = $1),
			(SELECT COALESCE(SUM(amount_sol), 0)::text FROM donations WHERE status = $1),
			(SELECT COUNT(*) FROM projects)
	`, string(domain.DonationConfirmed)).Scan(&stats.TotalDonations, &total, &stats.TotalProjects)
	if err != nil {
		return nil, fmt.Errorf("donation stats: %w", err)
	}
	if stats.TotalSOL, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	return &stats, nil
}

func scanProject(row pgx.Row) (*domain.Project, error) {
	var (
		p            domain.Project
		goal, raised string
		end          *time.Time
	)
	if err := row.Scan(&p.ID, &p.Title, &goal, &raised, &p.DonationCount, &p.Active, &end); err != nil {
		return nil, err
	}
	var err error
	if p.GoalSOL, err = decimal.NewFromString(goal); err != nil {
		return nil, fmt.Errorf("parse goal: %w", err)
	}
	if p.RaisedSOL, err = decimal.NewFromString(raised); err != nil {
		return nil, fmt.Errorf("parse raised: %w", err)
	}
	if end != nil {
		p.EndDate = *end
	}
	return &p, nil
}

func scanMilestones(rows pgx.Rows) ([]domain.Milestone, error) {
	defer rows.Close()

	var out []domain.Milestone
	for rows.Next() {
		var (
			m      domain.Milestone
			amount string
			at     *time.Time
		)
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Title, &amount, &m.SortOrder, &m.Reached, &at); err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		var err error
		if m.AmountSOL, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse milestone amount: %w", err)
		}
		if at != nil {
			m.ReachedAt = *at
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate milestones: %w", err)
	}
	return out, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
