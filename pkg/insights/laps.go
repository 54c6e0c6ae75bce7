package insights

import (
	"cmp"
	"slices"

	"github.com/aarondl/opt/omitnull"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mpapenbr/openf1-insights/pkg/model"
)

type (
	Lap struct {
		DriverNumber int     `json:"driverNumber"`
		LapNumber    int     `json:"lapNumber"` // -1 if unknown
		Duration     Seconds `json:"duration"`
		Sector1      Seconds `json:"sector1"`
		Sector2      Seconds `json:"sector2"`
		Sector3      Seconds `json:"sector3"`
		PitOutLap    bool    `json:"pitOutLap,omitempty"`
	}
	FastestLap struct {
		DriverNumber int     `json:"driverNumber"`
		LapNumber    int     `json:"lapNumber"`
		Duration     Seconds `json:"duration"`
	}
	AverageLapTime struct {
		DriverNumber int             `json:"driverNumber"`
		Average      decimal.Decimal `json:"average"`
		Laps         int             `json:"laps"`
	}
)

// averages are rounded to milliseconds
const averagePlaces = 3

type lapKey struct {
	driver int
	lap    int
}

// computeLaps returns one row per (driver, lap). Updates of the same lap
// replace earlier records. Rows are sorted by driver and lap.
func computeLaps(records []model.Record) []Lap {
	rows := []Lap{}
	idx := map[lapKey]int{}
	for _, r := range records {
		num, ok := r.DriverNumber()
		if !ok {
			continue
		}
		lapNum, _ := r.Int("lap_number")
		pitOut, _ := r.Bool("is_pit_out_lap")
		row := Lap{
			DriverNumber: num,
			LapNumber:    max(lapNum, -1),
			Duration:     secondsOf(r.Float("lap_duration")),
			Sector1:      secondsOf(r.Float("duration_sector_1")),
			Sector2:      secondsOf(r.Float("duration_sector_2")),
			Sector3:      secondsOf(r.Float("duration_sector_3")),
			PitOutLap:    pitOut,
		}
		if row.LapNumber > 0 {
			key := lapKey{num, row.LapNumber}
			if i, ok := idx[key]; ok {
				rows[i] = row
				continue
			}
			idx[key] = len(rows)
		}
		rows = append(rows, row)
	}
	slices.SortStableFunc(rows, func(a, b Lap) int {
		if c := cmp.Compare(a.DriverNumber, b.DriverNumber); c != 0 {
			return c
		}
		return cmp.Compare(a.LapNumber, b.LapNumber)
	})
	return rows
}

func computeFastestLap(rows []Lap) omitnull.Val[FastestLap] {
	valid := lo.Filter(rows, func(l Lap, _ int) bool { return l.Duration.Valid() })
	if len(valid) == 0 {
		return omitnull.FromPtr[FastestLap](nil)
	}
	best := lo.MinBy(valid, func(a, b Lap) bool { return a.Duration < b.Duration })
	return omitnull.From(FastestLap{
		DriverNumber: best.DriverNumber,
		LapNumber:    best.LapNumber,
		Duration:     best.Duration,
	})
}

func computeAverageLapTimes(rows []Lap) omitnull.Val[[]AverageLapTime] {
	valid := lo.Filter(rows, func(l Lap, _ int) bool { return l.Duration.Valid() })
	if len(valid) == 0 {
		return omitnull.FromPtr[[]AverageLapTime](nil)
	}
	byDriver := lo.GroupBy(valid, func(l Lap) int { return l.DriverNumber })
	numbers := lo.Keys(byDriver)
	slices.Sort(numbers)
	ret := lo.Map(numbers, func(num int, _ int) AverageLapTime {
		laps := byDriver[num]
		sum := lo.Reduce(laps, func(agg decimal.Decimal, l Lap, _ int) decimal.Decimal {
			return agg.Add(decimal.NewFromFloat(float64(l.Duration)))
		}, decimal.Zero)
		return AverageLapTime{
			DriverNumber: num,
			Average:      sum.Div(decimal.NewFromInt(int64(len(laps)))).Round(averagePlaces),
			Laps:         len(laps),
		}
	})
	return omitnull.From(ret)
}
