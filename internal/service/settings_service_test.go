package service

import (
	"context"
	"errors"
	"testing"

	"ecofin/internal/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsService_CreateRejectsDuplicatePeriod(t *testing.T) {
	env := newEnv(t)
	svc := NewSettingsService(env.settings, env.audit, testLogger)
	ctx := context.Background()

	req := CreateSettingsRequest{Year: 2025, Month: 3, IndirectExpensesTotal: dec("12000"), VacationCostPerWorker: dec("150")}
	created, err := svc.CreateSettings(ctx, managerActor, req)
	require.NoError(t, err)
	assert.Equal(t, "2025-03", created.Period)
	assert.Equal(t, "12000.00", created.IndirectExpensesTotal)

	_, err = svc.CreateSettings(ctx, managerActor, req)
	assert.True(t, errors.Is(err, apperror.ErrConflict))
}

func TestSettingsService_RejectsNegativeAmounts(t *testing.T) {
	env := newEnv(t)
	svc := NewSettingsService(env.settings, env.audit, testLogger)

	_, err := svc.CreateSettings(context.Background(), managerActor, CreateSettingsRequest{
		Year: 2025, Month: 3, IndirectExpensesTotal: dec("-1"),
	})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestSettingsService_LockedPeriodOnlyEditableByAdmin(t *testing.T) {
	env := newEnv(t)
	svc := NewSettingsService(env.settings, env.audit, testLogger)
	ctx := context.Background()

	s := env.seedSettings(t, 2025, 4, "5000", "100")
	s.Locked = true
	require.NoError(t, env.settings.Update(ctx, s))

	req := UpdateSettingsRequest{IndirectExpensesTotal: dec("6000"), VacationCostPerWorker: dec("100")}
	_, err := svc.UpdateSettings(ctx, managerActor, s.ID.String(), req)
	assert.True(t, errors.Is(err, apperror.ErrImmutableRecord))

	updated, err := svc.UpdateSettings(ctx, adminActor, s.ID.String(), req)
	require.NoError(t, err)
	assert.Equal(t, "6000.00", updated.IndirectExpensesTotal)

	got, err := svc.GetSettings(ctx, 2025, 4)
	require.NoError(t, err)
	assert.True(t, got.Locked)
	assert.Equal(t, "6000.00", got.IndirectExpensesTotal)
}

func TestSettingsService_GetMissingPeriod(t *testing.T) {
	env := newEnv(t)
	svc := NewSettingsService(env.settings, env.audit, testLogger)

	_, err := svc.GetSettings(context.Background(), 2025, 1)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}
