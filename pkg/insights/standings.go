package insights

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/mpapenbr/openf1-insights/pkg/model"
)

type Standing struct {
	DriverNumber int    `json:"driverNumber"`
	Position     int    `json:"position"` // -1 if unknown
	GapToLeader  string `json:"gapToLeader"`
	Interval     string `json:"interval"`
}

// lapped cars are sorted after all cars with a time gap
const lapGapWeight = 1e6

// computeStandings creates one entry per driver found in positions or intervals.
// The latest record per driver (arrival order) is used.
func computeStandings(positions, intervals []model.Record) []Standing {
	latestPos := latestByDriver(positions)
	latestInt := latestByDriver(intervals)
	numbers := lo.Uniq(append(lo.Keys(latestPos), lo.Keys(latestInt)...))

	type entry struct {
		Standing
		gap float64
	}
	entries := lo.Map(numbers, func(num int, _ int) entry {
		e := entry{
			Standing: Standing{
				DriverNumber: num,
				Position:     -1,
				GapToLeader:  NotAvailable,
				Interval:     NotAvailable,
			},
			gap: math.Inf(1),
		}
		if r, ok := latestPos[num]; ok {
			if p, ok := r.Int("position"); ok && p > 0 {
				e.Position = p
			}
		}
		if r, ok := latestInt[num]; ok {
			e.GapToLeader = gapText(r["gap_to_leader"])
			e.Interval = gapText(r["interval"])
			e.gap = gapKey(r["gap_to_leader"])
		}
		return e
	})
	slices.SortFunc(entries, func(a, b entry) int {
		if c := cmp.Compare(positionKey(a.Position), positionKey(b.Position)); c != 0 {
			return c
		}
		if c := cmp.Compare(a.gap, b.gap); c != 0 {
			return c
		}
		return cmp.Compare(a.DriverNumber, b.DriverNumber)
	})
	return lo.Map(entries, func(e entry, _ int) Standing { return e.Standing })
}

func positionKey(p int) int {
	if p <= 0 {
		return math.MaxInt
	}
	return p
}

// gapText renders a gap value which may be numeric (seconds) or a text like "+1 LAP"
func gapText(v any) string {
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case json.Number:
		return val.String()
	case string:
		if val != "" {
			return val
		}
	}
	return NotAvailable
}

func gapKey(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
		var laps int
		if _, err := fmt.Sscanf(strings.TrimSpace(val), "+%d LAP", &laps); err == nil {
			return float64(laps) * lapGapWeight
		}
	}
	return math.Inf(1)
}

// latestByDriver returns the last record (arrival order) per driver
func latestByDriver(records []model.Record) map[int]model.Record {
	ret := map[int]model.Record{}
	for _, r := range records {
		if num, ok := r.DriverNumber(); ok {
			ret[num] = r
		}
	}
	return ret
}
