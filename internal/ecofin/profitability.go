// Package ecofin holds the pure profitability and billing calculations.
// Nothing here touches storage; callers materialize inputs and persist results.
package ecofin

import "github.com/shopspring/decimal"

// WorkerInputs are the payroll values read from one imported row.
type WorkerInputs struct {
	GrossSalary          decimal.Decimal
	EmployerContribution decimal.Decimal // CAM
	HoursWorked          decimal.Decimal
}

// ClientTariff is the client snapshot copied onto a record when it is created.
type ClientTariff struct {
	HourlyRate        decimal.Decimal
	AccommodationCost decimal.Decimal
	MealCost          decimal.Decimal
	TransportCost     decimal.Decimal
}

// PeriodCosts are the per-worker values derived from the monthly settings.
type PeriodCosts struct {
	IndirectExpensesShare decimal.Decimal
	VacationCost          decimal.Decimal
}

// Profitability is the derived cost breakdown for one worker-period.
type Profitability struct {
	FullSalaryCost   decimal.Decimal
	TotalWorkerCost  decimal.Decimal
	GeneratedRevenue decimal.Decimal
	Profitability    decimal.Decimal
}

// ComputeProfitability applies the cost formula. It is deterministic and never fails;
// negative hours or a missing tariff must be rejected before calling it.
func ComputeProfitability(w WorkerInputs, t ClientTariff, p PeriodCosts) Profitability {
	fullSalaryCost := w.GrossSalary.Add(w.EmployerContribution)

	totalWorkerCost := fullSalaryCost.
		Add(t.AccommodationCost).
		Add(t.MealCost).
		Add(t.TransportCost).
		Add(p.IndirectExpensesShare).
		Add(p.VacationCost)

	generatedRevenue := w.HoursWorked.Mul(t.HourlyRate)

	return Profitability{
		FullSalaryCost:   fullSalaryCost,
		TotalWorkerCost:  totalWorkerCost,
		GeneratedRevenue: generatedRevenue,
		Profitability:    generatedRevenue.Sub(totalWorkerCost),
	}
}

// IndirectShare splits the monthly indirect expenses evenly over the valid rows of a batch,
// rounded to cents. Zero valid rows yield a zero share.
func IndirectShare(total decimal.Decimal, validCount int) decimal.Decimal {
	if validCount <= 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(validCount))).Round(2)
}
