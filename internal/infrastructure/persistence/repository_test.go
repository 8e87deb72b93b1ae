package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/shared"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(models.All()...)
	require.NoError(t, err)

	return db
}

func seedPlan(t *testing.T, db *gorm.DB, name string, rank int, limits map[billing.Dimension]billing.Limit) *billing.Plan {
	plan := &billing.Plan{
		ID:            uuid.New(),
		Name:          name,
		DisplayName:   name,
		TierRank:      rank,
		Limits:        limits,
		Price:         decimal.NewFromFloat(29.99),
		Currency:      "USD",
		Interval:      billing.BillingIntervalMonthly,
		Features:      billing.PlanFeatures{AllowAPITracking: true, AllowLogging: true},
		RetentionDays: 30,
		IsActive:      true,
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
	require.NoError(t, NewGormPlanRepository(db).Save(context.Background(), plan))
	return plan
}

func TestGormPlanRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormPlanRepository(db)
	ctx := context.Background()

	pro := seedPlan(t, db, "pro", 2, map[billing.Dimension]billing.Limit{
		billing.DimensionDevices: 1000,
		billing.DimensionLogs:    billing.Unlimited,
	})
	seedPlan(t, db, "free", 0, map[billing.Dimension]billing.Limit{billing.DimensionDevices: 10})
	legacy := seedPlan(t, db, "legacy", 1, nil)
	legacy.IsActive = false
	require.NoError(t, repo.Save(ctx, legacy))

	t.Run("finds by name with limits intact", func(t *testing.T) {
		got, err := repo.FindByName(ctx, "pro")
		require.NoError(t, err)

		assert.Equal(t, pro.ID, got.ID)
		assert.Equal(t, billing.Limit(1000), got.Limit(billing.DimensionDevices))
		assert.True(t, got.Limit(billing.DimensionLogs).IsUnlimited())
		assert.True(t, got.Limit(billing.DimensionSessions).IsUnlimited(), "absent dimension is unlimited")
		assert.True(t, got.Price.Equal(decimal.NewFromFloat(29.99)))
		assert.True(t, got.Features.AllowAPITracking)
	})

	t.Run("finds by id", func(t *testing.T) {
		got, err := repo.FindByID(ctx, pro.ID)
		require.NoError(t, err)
		assert.Equal(t, "pro", got.Name)
	})

	t.Run("missing plan is not found", func(t *testing.T) {
		_, err := repo.FindByName(ctx, "platinum")
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("lists plans by tier", func(t *testing.T) {
		all, err := repo.FindAll(ctx, false)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"free", "legacy", "pro"}, []string{all[0].Name, all[1].Name, all[2].Name})

		active, err := repo.FindAll(ctx, true)
		require.NoError(t, err)
		assert.Len(t, active, 2)
	})
}

func TestGormPlanRepository_SeedDefaults(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormPlanRepository(db)
	ctx := context.Background()

	created, err := repo.SeedDefaults(ctx, billing.DefaultCatalog(testNow))
	require.NoError(t, err)
	assert.Equal(t, 4, created)

	free, err := repo.FindByName(ctx, "free")
	require.NoError(t, err)
	free.Limits[billing.DimensionDevices] = 5
	require.NoError(t, repo.Save(ctx, free))

	created, err = repo.SeedDefaults(ctx, billing.DefaultCatalog(testNow))
	require.NoError(t, err)
	assert.Zero(t, created)

	got, err := repo.FindByName(ctx, "free")
	require.NoError(t, err)
	assert.Equal(t, billing.Limit(5), got.Limit(billing.DimensionDevices), "seeding keeps edited plans")

	active, err := repo.FindAll(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 3)
}

func TestGormSubscriptionRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormSubscriptionRepository(db)
	ctx := context.Background()
	plan := seedPlan(t, db, "starter", 1, nil)

	tenantID := uuid.New()
	sub, err := billing.NewSubscription(tenantID, plan, testNow)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, sub))

	t.Run("round trips a new subscription", func(t *testing.T) {
		got, err := repo.FindByTenantID(ctx, tenantID)
		require.NoError(t, err)

		assert.Equal(t, sub.ID, got.ID)
		assert.Equal(t, plan.ID, got.PlanID)
		assert.True(t, got.Enabled)
		assert.Equal(t, billing.SubscriptionStatusActive, got.Status)
		assert.True(t, got.CurrentPeriodStart.Equal(testNow))
		assert.Empty(t, got.Overrides)
	})

	t.Run("persists disable and overrides", func(t *testing.T) {
		limit := int64(500)
		require.NoError(t, sub.SetOverride(billing.DimensionSessions, &limit, testNow))
		sub.Disable("ops@example.com", "chargeback", testNow)
		require.NoError(t, repo.Save(ctx, sub))

		got, err := repo.FindByID(ctx, sub.ID)
		require.NoError(t, err)
		assert.False(t, got.Enabled, "false must survive the write")
		assert.Equal(t, "chargeback", got.DisabledReason)
		require.NotNil(t, got.DisabledAt)
		assert.True(t, got.DisabledAt.Equal(testNow))
		require.NotNil(t, got.Overrides[billing.DimensionSessions])
		assert.Equal(t, int64(500), *got.Overrides[billing.DimensionSessions])
	})

	t.Run("lists tenant ids", func(t *testing.T) {
		other := uuid.New()
		otherSub, err := billing.NewSubscription(other, plan, testNow)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, otherSub))

		ids, err := repo.FindAllTenantIDs(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []uuid.UUID{tenantID, other}, ids)
	})

	t.Run("unknown tenant is not found", func(t *testing.T) {
		_, err := repo.FindByTenantID(ctx, uuid.New())
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})
}

func TestGormSubscriptionRepository_FindDueForRenewal(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormSubscriptionRepository(db)
	ctx := context.Background()
	plan := seedPlan(t, db, "starter", 1, nil)

	save := func(periodEnd time.Time, mutate func(*billing.Subscription)) *billing.Subscription {
		sub, err := billing.NewSubscription(uuid.New(), plan, periodEnd.AddDate(0, -1, 0))
		require.NoError(t, err)
		require.NoError(t, sub.RenewPeriod(periodEnd.AddDate(0, -1, 0), periodEnd, testNow))
		if mutate != nil {
			mutate(sub)
		}
		require.NoError(t, repo.Save(ctx, sub))
		return sub
	}

	older := save(testNow.Add(-48*time.Hour), nil)
	endsNow := save(testNow, nil)
	trial := save(testNow.Add(-time.Hour), func(s *billing.Subscription) {
		require.NoError(t, s.SetStatus(billing.SubscriptionStatusTrial, testNow))
	})
	save(testNow.Add(time.Hour), nil)
	save(testNow.Add(-time.Hour), func(s *billing.Subscription) { s.Disable("ops", "abuse", testNow) })
	save(testNow.Add(-time.Hour), func(s *billing.Subscription) {
		require.NoError(t, s.SetStatus(billing.SubscriptionStatusExpired, testNow))
	})

	due, err := repo.FindDueForRenewal(ctx, testNow, 10)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, []uuid.UUID{older.ID, trial.ID, endsNow.ID}, []uuid.UUID{due[0].ID, due[1].ID, due[2].ID})

	limited, err := repo.FindDueForRenewal(ctx, testNow, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, older.ID, limited[0].ID)
}

func TestGormEnforcementStateRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormEnforcementStateRepository(db)
	ctx := context.Background()
	cfg := billing.DefaultPolicyConfig()

	tenantID := uuid.New()
	graceEnds := testNow.Add(48 * time.Hour)
	state := &billing.EnforcementState{
		TenantID:         tenantID,
		SubscriptionID:   uuid.New(),
		Phase:            billing.GracePhase{EndsAt: graceEnds},
		GraceEnteredAt:   &testNow,
		TriggeredMetrics: []billing.TriggeredMetric{{Metric: "sessions", Used: 1200, Limit: 1000, Percentage: 120}},
		Policy:           billing.Compile(billing.StateGrace, billing.CauseNone, cfg),
		LastEvaluatedAt:  testNow,
		NextEvaluationAt: testNow.Add(5 * time.Minute),
		UpdatedAt:        testNow,
	}

	t.Run("missing record is not found", func(t *testing.T) {
		_, err := repo.FindByTenantID(ctx, tenantID)
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("round trips the grace phase", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, state))

		got, err := repo.FindByTenantID(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, billing.StateGrace, got.State())
		require.NotNil(t, got.GraceEndsAt())
		assert.True(t, got.GraceEndsAt().Equal(graceEnds))
		assert.Equal(t, []string{"sessions"}, got.TriggeredMetricNames())
		assert.Equal(t, state.Policy, got.Policy)
	})

	t.Run("upsert replaces the phase", func(t *testing.T) {
		degraded := *state
		degraded.Phase = billing.DegradedPhase{Cause: billing.CauseUsageExceeded}
		degraded.Policy = billing.Compile(billing.StateDegraded, billing.CauseUsageExceeded, cfg)
		require.NoError(t, repo.Upsert(ctx, &degraded))

		got, err := repo.FindByTenantID(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, billing.StateDegraded, got.State())
		assert.Equal(t, billing.CauseUsageExceeded, got.Cause())
		assert.Nil(t, got.GraceEndsAt())

		var count int64
		require.NoError(t, db.Model(&models.EnforcementStateModel{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("finds due records and invalidates", func(t *testing.T) {
		ids, err := repo.FindDue(ctx, testNow, 10)
		require.NoError(t, err)
		assert.Empty(t, ids)

		require.NoError(t, repo.Invalidate(ctx, tenantID, testNow))

		ids, err = repo.FindDue(ctx, testNow, 10)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{tenantID}, ids)
	})

	t.Run("deferring pushes a due record back", func(t *testing.T) {
		require.NoError(t, repo.Defer(ctx, tenantID, testNow.Add(10*time.Minute)))

		ids, err := repo.FindDue(ctx, testNow, 10)
		require.NoError(t, err)
		assert.Empty(t, ids)

		ids, err = repo.FindDue(ctx, testNow.Add(10*time.Minute), 10)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{tenantID}, ids)
	})

	t.Run("invalidating an unknown tenant is a no-op", func(t *testing.T) {
		assert.NoError(t, repo.Invalidate(ctx, uuid.New(), testNow))
	})

	t.Run("counts by state", func(t *testing.T) {
		active := billing.NewActiveState(uuid.New(), testNow, cfg)
		require.NoError(t, repo.Upsert(ctx, active))

		counts, err := repo.CountByState(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts[billing.StateDegraded])
		assert.Equal(t, int64(1), counts[billing.StateActive])
	})
}

func TestGormEnforcementStateRepository_RejectsCorruptRows(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormEnforcementStateRepository(db)
	tenantID := uuid.New()

	require.NoError(t, db.Create(&models.EnforcementStateModel{
		TenantID:             tenantID,
		SubscriptionID:       uuid.New(),
		State:                "GRACE",
		TriggeredMetricsJSON: "[]",
		PolicyJSON:           "{}",
		LastEvaluatedAt:      testNow,
		NextEvaluationAt:     testNow,
		UpdatedAt:            testNow,
	}).Error)

	_, err := repo.FindByTenantID(context.Background(), tenantID)
	assert.True(t, errors.Is(err, shared.ErrPersistence))
}

func TestGormProjectRepository_ResolveAPIKey(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormProjectRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	live := models.ProjectModel{BaseModel: models.BaseModel{ID: uuid.New()}, TenantID: tenantID, Name: "ios", APIKey: "pk_live"}
	deletedAt := testNow
	gone := models.ProjectModel{BaseModel: models.BaseModel{ID: uuid.New()}, TenantID: tenantID, Name: "old", APIKey: "pk_gone", DeletedAt: &deletedAt}
	require.NoError(t, db.Create(&live).Error)
	require.NoError(t, db.Create(&gone).Error)

	gotTenant, gotProject, err := repo.ResolveAPIKey(ctx, "pk_live")
	require.NoError(t, err)
	assert.Equal(t, tenantID, gotTenant)
	assert.Equal(t, live.ID, gotProject)

	_, _, err = repo.ResolveAPIKey(ctx, "pk_gone")
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}
