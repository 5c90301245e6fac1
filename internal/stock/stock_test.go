package stock

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/medminder/internal/model"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func med(id int64, remaining, timesPerDay, perDose int) model.Medication {
	return model.Medication{
		ID:                id,
		Name:              "med",
		RemainingQuantity: remaining,
		TimesPerDay:       timesPerDay,
		DosagePerTime:     perDose,
		IsActive:          true,
	}
}

func TestPredict(t *testing.T) {
	p := Predict(med(1, 20, 3, 1), now)
	assert.Equal(t, 3, p.DailyUsage)
	assert.Equal(t, 6, p.DaysRemaining, "20/3 floors to 6")
	require.NotNil(t, p.PredictedExhaustDate)
	assert.Equal(t, now.AddDate(0, 0, 6), *p.PredictedExhaustDate)
}

func TestPredict_ZeroUsageNeverExhausts(t *testing.T) {
	p := Predict(med(1, 20, 0, 1), now)
	assert.Equal(t, 0, p.DailyUsage)
	assert.Equal(t, NeverExhausts, p.DaysRemaining)
	assert.Nil(t, p.PredictedExhaustDate)
}

func TestPredict_LessThanOneDayLeft(t *testing.T) {
	p := Predict(med(1, 2, 3, 1), now)
	assert.Equal(t, 0, p.DaysRemaining)
	require.NotNil(t, p.PredictedExhaustDate)
	assert.Equal(t, now, *p.PredictedExhaustDate)
}

func TestIsLow(t *testing.T) {
	tests := []struct {
		name      string
		m         model.Medication
		threshold int
		want      bool
	}{
		{"exactly at threshold", med(1, 21, 3, 1), 7, true},
		{"fractional just above threshold", med(1, 15, 2, 1), 7, false}, // 7.5 days
		{"well above", med(1, 90, 1, 1), 7, false},
		{"below one day", med(1, 1, 2, 1), 7, true},
		{"empty is not low", med(1, 0, 2, 1), 7, false},
		{"zero usage is not low", med(1, 3, 0, 1), 7, false},
		{"per-dose multiplier", med(1, 28, 2, 2), 7, true}, // 7 days
		{"zero threshold only sub-day", med(1, 1, 2, 1), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsLow(tt.m, tt.threshold))
		})
	}
}

func TestLowStock_PreservesOrderAndFlags(t *testing.T) {
	meds := []model.Medication{
		med(1, 100, 1, 1), // 100 days
		med(2, 2, 3, 1),   // 0 days (out of stock copy)
		med(3, 12, 3, 1),  // 4 days
		med(4, 0, 3, 1),   // empty: excluded
	}

	low := LowStock(meds, DefaultThresholdDays, now)
	require.Len(t, low, 2)
	assert.Equal(t, int64(2), low[0].ID)
	assert.True(t, low[0].OutOfStock())
	assert.True(t, low[0].Urgent())

	assert.Equal(t, int64(3), low[1].ID)
	assert.False(t, low[1].OutOfStock())
	assert.False(t, low[1].Urgent())
	assert.Equal(t, 4, low[1].DaysRemaining)
}

func TestForecasts_IncludesEveryMedication(t *testing.T) {
	fs := Forecasts([]model.Medication{med(1, 10, 0, 1), med(2, 10, 1, 1)}, now)
	require.Len(t, fs, 2)
	assert.Equal(t, NeverExhausts, fs[0].DaysRemaining)
	assert.Equal(t, 10, fs[1].DaysRemaining)
}

func TestForecast_JSONIsFlat(t *testing.T) {
	f := Forecast{Medication: med(9, 6, 2, 1), Prediction: Predict(med(9, 6, 2, 1), now)}
	data, err := json.Marshal(f)
	require.NoError(t, err)

	var obj map[string]any
	require.NoError(t, json.Unmarshal(data, &obj))
	assert.EqualValues(t, 9, obj["id"])
	assert.EqualValues(t, 3, obj["daysRemaining"])
	assert.EqualValues(t, 2, obj["dailyUsage"])
	assert.Contains(t, obj, "predictedExhaustDate")
}
