package insights

import (
	"github.com/mpapenbr/openf1-insights/pkg/model"
)

// PitInsight is either PitCounts (historical) or RecentPits (live).
type PitInsight interface {
	Name() string
	pitInsight()
}

type (
	// PitCounts holds the number of pit stops per driver
	PitCounts map[int]int
	// RecentPits holds the most recent pit events in arrival order
	RecentPits []PitEvent
	PitEvent   struct {
		DriverNumber int     `json:"driverNumber"`
		LapNumber    int     `json:"lapNumber"`
		Duration     Seconds `json:"duration"`
		Date         string  `json:"date"`
	}
)

func (PitCounts) Name() string  { return ViewPitCounts }
func (PitCounts) pitInsight()   {}
func (RecentPits) Name() string { return ViewRecentPits }
func (RecentPits) pitInsight()  {}

func computePits(records []model.Record, mode model.Mode, limit int) PitInsight {
	if mode == model.ModeHistorical {
		counts := PitCounts{}
		for _, r := range records {
			if num, ok := r.DriverNumber(); ok {
				counts[num]++
			}
		}
		return counts
	}
	events := RecentPits{}
	for _, r := range records {
		num, ok := r.DriverNumber()
		if !ok {
			continue
		}
		events = append(events, PitEvent{
			DriverNumber: num,
			LapNumber:    intOr(r, "lap_number"),
			Duration:     secondsOf(r.Float("pit_duration")),
			Date:         r.StringOr("date", NotAvailable),
		})
	}
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events
}
