package main

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"solio-donations/internal/domain"
	"solio-donations/internal/storage"
)

// seedProjects creates demo campaigns for local runs.
func seedProjects(ctx context.Context, store storage.DonationStore) error {
	projects := []*domain.Project{
		{Title: "Open-source validator tooling", GoalSOL: decimal.NewFromInt(50), Active: true},
		{Title: "Community hackathon prizes", GoalSOL: decimal.NewFromInt(20), Active: true, EndDate: time.Now().AddDate(0, 3, 0)},
	}
	for _, p := range projects {
		p.RaisedSOL = decimal.Zero
		if err := store.CreateProject(ctx, p); err != nil {
			return err
		}
	}

	limit := int64(25)
	if err := store.CreateRewardTier(ctx, &domain.RewardTier{
		ProjectID:    projects[0].ID,
		Title:        "Contributor sticker pack",
		MinAmountSOL: decimal.RequireFromString("0.5"),
		MaxClaims:    &limit,
	}); err != nil {
		return err
	}

	milestones := []*domain.Milestone{
		{ProjectID: projects[0].ID, Title: "Snapshot tooling", AmountSOL: decimal.NewFromInt(10), SortOrder: 1},
		{ProjectID: projects[0].ID, Title: "Metrics dashboard", AmountSOL: decimal.NewFromInt(25), SortOrder: 2},
		{ProjectID: projects[1].ID, Title: "Second prize pool", AmountSOL: decimal.NewFromInt(10), SortOrder: 1},
	}
	for _, m := range milestones {
		if err := store.CreateMilestone(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
