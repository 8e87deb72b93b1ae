package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaService_ThirdDeviceIsThrottled(t *testing.T) {
	f := newFixture(t, map[billing.Dimension]billing.Limit{billing.DimensionDevices: 2})
	f.counter.set(billing.DimensionDevices, 2)

	d, err := f.quota.Check(context.Background(), QuotaCheckInput{
		TenantID:  f.tenantID,
		Dimension: billing.DimensionDevices,
	})

	require.NoError(t, err)
	assert.True(t, d.Throttled)
	assert.Contains(t, d.Message, "2 of 2")
	assert.Nil(t, d.RetryAfter)
	assert.Equal(t, int64(1), d.Increment, "increment defaults to 1")
}

func TestQuotaService_PeriodDimensionRetryHint(t *testing.T) {
	f := newFixture(t, map[billing.Dimension]billing.Limit{billing.DimensionSessions: 100})
	f.counter.set(billing.DimensionSessions, 100)

	d, err := f.quota.Check(context.Background(), QuotaCheckInput{
		TenantID:  f.tenantID,
		Dimension: billing.DimensionSessions,
		Increment: 1,
	})

	require.NoError(t, err)
	require.True(t, d.Throttled)
	require.NotNil(t, d.RetryAfter)
	assert.Equal(t, f.sub.CurrentPeriodEnd.Sub(baseTime), *d.RetryAfter)
}

func TestQuotaService_UnlimitedAllows(t *testing.T) {
	f := newFixture(t, nil)
	f.counter.set(billing.DimensionLogs, 1_000_000_000)

	d, err := f.quota.Check(context.Background(), QuotaCheckInput{
		TenantID:  f.tenantID,
		Dimension: billing.DimensionLogs,
		Increment: 500,
	})

	require.NoError(t, err)
	assert.False(t, d.Throttled)
}

func TestQuotaService_DoesNotMutateUsage(t *testing.T) {
	f := newFixture(t, map[billing.Dimension]billing.Limit{billing.DimensionProjects: 3})
	f.counter.set(billing.DimensionProjects, 1)
	in := QuotaCheckInput{TenantID: f.tenantID, Dimension: billing.DimensionProjects}

	for i := 0; i < 5; i++ {
		d, err := f.quota.Check(context.Background(), in)
		require.NoError(t, err)
		assert.False(t, d.Throttled)
		assert.Equal(t, int64(1), d.Usage.Used)
	}
}

func TestQuotaService_RejectsNegativeIncrement(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.quota.Check(context.Background(), QuotaCheckInput{
		TenantID:  f.tenantID,
		Dimension: billing.DimensionLogs,
		Increment: -1,
	})

	var de *shared.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "VALIDATION_ERROR", de.Code)
}

func TestQuotaService_InvalidDimension(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.quota.Check(context.Background(), QuotaCheckInput{
		TenantID:  f.tenantID,
		Dimension: billing.Dimension("seats"),
	})

	assert.True(t, errors.Is(err, shared.ErrInvalidDimension))
}

func TestQuotaService_CheckManyReturnsFirstThrottle(t *testing.T) {
	f := newFixture(t, map[billing.Dimension]billing.Limit{
		billing.DimensionLocalizationKeys:      100,
		billing.DimensionLocalizationLanguages: 2,
	})
	f.counter.set(billing.DimensionLocalizationKeys, 10)
	f.counter.set(billing.DimensionLocalizationLanguages, 2)

	d, err := f.quota.CheckMany(context.Background(), []QuotaCheckInput{
		{TenantID: f.tenantID, Dimension: billing.DimensionLocalizationKeys, Increment: 5},
		{TenantID: f.tenantID, Dimension: billing.DimensionLocalizationLanguages},
	})

	require.NoError(t, err)
	assert.True(t, d.Throttled)
	assert.Equal(t, billing.DimensionLocalizationLanguages, d.Usage.Dimension)
}

func TestQuotaService_CheckManyRequiresInput(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.quota.CheckMany(context.Background(), nil)
	assert.Error(t, err)
}

func TestQuotaService_RetryHintNeverNegative(t *testing.T) {
	f := newFixture(t, map[billing.Dimension]billing.Limit{billing.DimensionCrashes: 1})
	f.counter.set(billing.DimensionCrashes, 1)
	f.clock.Advance(90 * 24 * time.Hour)

	d, err := f.quota.Check(context.Background(), QuotaCheckInput{TenantID: f.tenantID, Dimension: billing.DimensionCrashes})

	require.NoError(t, err)
	require.NotNil(t, d.RetryAfter)
	assert.Equal(t, time.Duration(0), *d.RetryAfter)
}
