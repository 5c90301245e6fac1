// Package stock predicts when a medication's supply runs out and selects the
// medications whose supply is low.
package stock

import (
	"time"

	"github.com/albapepper/medminder/internal/model"
)

const (
	// DefaultThresholdDays is the low-stock horizon when none is given.
	DefaultThresholdDays = 7
	// NeverExhausts is reported as days remaining when daily usage is zero.
	NeverExhausts = 999
	// UrgentDays marks forecasts that escalate email copy.
	UrgentDays = 3
)

const day = 24 * time.Hour

// Prediction is the supply outlook for one medication.
type Prediction struct {
	DailyUsage           int        `json:"dailyUsage"`
	DaysRemaining        int        `json:"daysRemaining"`
	PredictedExhaustDate *time.Time `json:"predictedExhaustDate"`
}

// Forecast is a medication together with its prediction. It serializes as
// one flat object.
type Forecast struct {
	model.Medication
	Prediction
}

// OutOfStock reports whether the supply is already exhausted at the daily rate.
func (f Forecast) OutOfStock() bool {
	return f.DaysRemaining <= 0
}

// Urgent reports whether the supply runs out within UrgentDays.
func (f Forecast) Urgent() bool {
	return f.DaysRemaining <= UrgentDays
}

// DailyUsage is doses-per-day multiplied by units-per-dose.
func DailyUsage(m model.Medication) int {
	return m.TimesPerDay * m.DosagePerTime
}

// Predict computes days remaining (floored) and the predicted exhaustion
// date. Zero daily usage never exhausts.
func Predict(m model.Medication, now time.Time) Prediction {
	usage := DailyUsage(m)
	if usage <= 0 {
		return Prediction{DailyUsage: usage, DaysRemaining: NeverExhausts}
	}
	days := m.RemainingQuantity / usage
	if m.RemainingQuantity < 0 {
		days = 0
	}
	exhaust := now.Add(time.Duration(days) * day)
	return Prediction{
		DailyUsage:           usage,
		DaysRemaining:        days,
		PredictedExhaustDate: &exhaust,
	}
}

// IsLow reports whether m has supply left that runs out within threshold
// days. The comparison uses the exact ratio, so 7.5 days is not low at a
// threshold of 7.
func IsLow(m model.Medication, threshold int) bool {
	usage := DailyUsage(m)
	if usage <= 0 || m.RemainingQuantity <= 0 {
		return false
	}
	return float64(m.RemainingQuantity)/float64(usage) <= float64(threshold)
}

// Forecasts attaches a prediction to every medication.
func Forecasts(meds []model.Medication, now time.Time) []Forecast {
	out := make([]Forecast, 0, len(meds))
	for _, m := range meds {
		out = append(out, Forecast{Medication: m, Prediction: Predict(m, now)})
	}
	return out
}

// LowStock returns forecasts for the medications that are low at threshold,
// preserving input order.
func LowStock(meds []model.Medication, threshold int, now time.Time) []Forecast {
	out := []Forecast{}
	for _, m := range meds {
		if IsLow(m, threshold) {
			out = append(out, Forecast{Medication: m, Prediction: Predict(m, now)})
		}
	}
	return out
}
