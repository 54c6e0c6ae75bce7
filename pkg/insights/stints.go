package insights

import (
	"cmp"
	"math"
	"slices"

	"github.com/samber/lo"

	"github.com/mpapenbr/openf1-insights/pkg/model"
)

type (
	Stint struct {
		StintNumber    int    `json:"stintNumber"`
		Compound       string `json:"compound"`
		TyreAgeAtStart int    `json:"tyreAgeAtStart"`
		LapStart       int    `json:"lapStart"`
		LapEnd         int    `json:"lapEnd"`
	}
	DriverStints struct {
		DriverNumber int     `json:"driverNumber"`
		Stints       []Stint `json:"stints"`
	}
	TyreState struct {
		DriverNumber int    `json:"driverNumber"`
		Compound     string `json:"compound"`
		TyreAge      int    `json:"tyreAge"`
	}
)

// computeStints groups stints by driver ordered by lap_start. A record with a
// known stint number replaces an earlier record of the same stint.
func computeStints(records []model.Record) []DriverStints {
	grouped := map[int][]Stint{}
	for _, r := range records {
		num, ok := r.DriverNumber()
		if !ok {
			continue
		}
		s := Stint{
			StintNumber:    intOr(r, "stint_number"),
			Compound:       r.StringOr("compound", NotAvailable),
			TyreAgeAtStart: intOr(r, "tyre_age_at_start"),
			LapStart:       intOr(r, "lap_start"),
			LapEnd:         intOr(r, "lap_end"),
		}
		stints := grouped[num]
		if s.StintNumber > 0 {
			if i := slices.IndexFunc(stints, func(x Stint) bool {
				return x.StintNumber == s.StintNumber
			}); i >= 0 {
				stints[i] = s
				continue
			}
		}
		grouped[num] = append(stints, s)
	}
	numbers := lo.Keys(grouped)
	slices.Sort(numbers)
	return lo.Map(numbers, func(num int, _ int) DriverStints {
		stints := grouped[num]
		slices.SortStableFunc(stints, func(a, b Stint) int {
			return cmp.Compare(lapStartKey(a.LapStart), lapStartKey(b.LapStart))
		})
		return DriverStints{DriverNumber: num, Stints: stints}
	})
}

func lapStartKey(lap int) int {
	if lap < 0 {
		return math.MaxInt
	}
	return lap
}

// computeTyres returns the latest compound and tyre age per driver
func computeTyres(records []model.Record) []TyreState {
	latest := latestByDriver(records)
	numbers := lo.Keys(latest)
	slices.Sort(numbers)
	return lo.Map(numbers, func(num int, _ int) TyreState {
		r := latest[num]
		age, ok := r.Int("tyre_age")
		if !ok {
			age = intOr(r, "tyre_age_at_start")
		}
		return TyreState{
			DriverNumber: num,
			Compound:     r.StringOr("compound", NotAvailable),
			TyreAge:      age,
		}
	})
}

// intOr returns the int value of key or -1
func intOr(r model.Record, key string) int {
	v, ok := r.Int(key)
	if !ok {
		return -1
	}
	return v
}
