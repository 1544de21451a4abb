package ecofin

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeProfitability(t *testing.T) {
	w := WorkerInputs{GrossSalary: d("5000"), EmployerContribution: d("125"), HoursWorked: d("168")}
	tariff := ClientTariff{HourlyRate: d("25"), AccommodationCost: d("500"), MealCost: d("300"), TransportCost: d("200")}
	period := PeriodCosts{IndirectExpensesShare: d("100"), VacationCost: d("50")}

	got := ComputeProfitability(w, tariff, period)

	assert.True(t, got.FullSalaryCost.Equal(d("5125")), "full salary cost %s", got.FullSalaryCost)
	assert.True(t, got.TotalWorkerCost.Equal(d("6275")), "total worker cost %s", got.TotalWorkerCost)
	assert.True(t, got.GeneratedRevenue.Equal(d("4200")), "revenue %s", got.GeneratedRevenue)
	assert.True(t, got.Profitability.Equal(d("-2075")), "profit %s", got.Profitability)
}

func TestComputeProfitabilityIdentitiesHold(t *testing.T) {
	w := WorkerInputs{GrossSalary: d("4312.57"), EmployerContribution: d("97.03"), HoursWorked: d("171.5")}
	tariff := ClientTariff{HourlyRate: d("31.25"), AccommodationCost: d("612.10"), MealCost: d("0.01"), TransportCost: d("145.99")}
	period := PeriodCosts{IndirectExpensesShare: d("333.33"), VacationCost: d("18.42")}

	first := ComputeProfitability(w, tariff, period)
	second := ComputeProfitability(w, tariff, period)

	expectedTotal := first.FullSalaryCost.
		Add(tariff.AccommodationCost).Add(tariff.MealCost).Add(tariff.TransportCost).
		Add(period.IndirectExpensesShare).Add(period.VacationCost)
	assert.True(t, first.TotalWorkerCost.Equal(expectedTotal))
	assert.True(t, first.Profitability.Equal(first.GeneratedRevenue.Sub(first.TotalWorkerCost)))
	assert.Equal(t, first.Profitability.String(), second.Profitability.String())
	assert.Equal(t, first, second)
}

func TestIndirectShare(t *testing.T) {
	t.Run("zero valid rows", func(t *testing.T) {
		assert.True(t, IndirectShare(d("10000"), 0).IsZero())
	})

	t.Run("even split", func(t *testing.T) {
		assert.True(t, IndirectShare(d("10000"), 4).Equal(d("2500")))
	})

	t.Run("rounded to cents within one unit", func(t *testing.T) {
		total := d("10000")
		for _, n := range []int{3, 7, 11, 13, 97} {
			share := IndirectShare(total, n)
			assert.LessOrEqual(t, share.Exponent(), int32(0))
			assert.GreaterOrEqual(t, share.Exponent(), int32(-2))
			diff := share.Mul(decimal.NewFromInt(int64(n))).Sub(total).Abs()
			assert.True(t, diff.LessThanOrEqual(d("0.01").Mul(decimal.NewFromInt(int64(n)))), "n=%d diff=%s", n, diff)
		}
	})
}
