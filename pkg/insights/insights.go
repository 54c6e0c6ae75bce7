package insights

import (
	"github.com/aarondl/opt/omit"
	"github.com/aarondl/opt/omitnull"

	"github.com/mpapenbr/openf1-insights/pkg/model"
)

// names of the views
const (
	ViewStandings       = "standings"
	ViewLaps            = "laps"
	ViewFastestLap      = "fastest_lap"
	ViewAverageLapTimes = "average_lap_times"
	ViewCarData         = "car_data"
	ViewStints          = "stints"
	ViewTyres           = "tyres"
	ViewPitCounts       = "pit_counts"
	ViewRecentPits      = "recent_pits"
	ViewRaceEvents      = "race_events"
	ViewWeather         = "weather"
	ViewTeamRadio       = "team_radio"
)

// RecentPitLimit is the default number of pit events kept in live mode
const RecentPitLimit = 20

// Insights holds the views derived from one set of raw collections.
// A view is unset if the required category was not part of the input or the
// view does not apply to the mode.
//
// FastestLap and AverageLapTimes distinguish three states: unset (not
// applicable), null (laps present but no valid duration) and a value.
type Insights struct {
	Mode            model.Mode
	Standings       omit.Val[[]Standing]
	Laps            omit.Val[[]Lap]
	FastestLap      omitnull.Val[FastestLap]
	AverageLapTimes omitnull.Val[[]AverageLapTime]
	CarData         omit.Val[[]model.Record]
	Stints          omit.Val[[]DriverStints]
	Tyres           omit.Val[[]TyreState]
	Pits            PitInsight
	RaceEvents      omit.Val[[]RaceEvent]
	Weather         omit.Val[model.Record]
	TeamRadio       omit.Val[[]RadioClip]
}

type (
	Option func(*config)
	config struct {
		recentPits int
	}
)

// WithRecentPitLimit sets the number of pit events kept in live mode
func WithRecentPitLimit(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.recentPits = n
		}
	}
}

// Generate derives all applicable views from raw. It does not modify raw and
// always produces the same result for the same input.
func Generate(raw model.Collections, mode model.Mode, opts ...Option) *Insights {
	cfg := &config{recentPits: RecentPitLimit}
	for _, opt := range opts {
		opt(cfg)
	}
	ret := &Insights{Mode: mode}

	positions, hasPositions := raw[model.CategoryPosition]
	intervals, hasIntervals := raw[model.CategoryIntervals]
	if hasPositions || hasIntervals {
		ret.Standings.Set(computeStandings(positions, intervals))
	}

	if laps, ok := raw[model.CategoryLaps]; ok {
		rows := computeLaps(laps)
		ret.Laps.Set(rows)
		ret.FastestLap = computeFastestLap(rows)
		if mode == model.ModeHistorical {
			ret.AverageLapTimes = computeAverageLapTimes(rows)
		}
	}

	if carData, ok := raw[model.CategoryCarData]; ok {
		ret.CarData.Set(clone(carData))
	}
	if stints, ok := raw[model.CategoryStints]; ok {
		ret.Stints.Set(computeStints(stints))
	}
	if tyres, ok := raw[model.CategoryTyres]; ok {
		ret.Tyres.Set(computeTyres(tyres))
	}
	if pits, ok := raw[model.CategoryPit]; ok {
		ret.Pits = computePits(pits, mode, cfg.recentPits)
	}
	if events, ok := raw[model.CategoryRaceControl]; ok {
		ret.RaceEvents.Set(computeRaceEvents(events))
	}
	if weather, ok := raw[model.CategoryWeather]; ok && len(weather) > 0 {
		ret.Weather.Set(weather[len(weather)-1].Clone())
	}
	if radio, ok := raw[model.CategoryTeamRadio]; ok {
		ret.TeamRadio.Set(computeTeamRadio(radio))
	}
	return ret
}

// Names returns the names of the views present in ins in a stable order
func (ins *Insights) Names() []string {
	ret := []string{}
	add := func(name string, present bool) {
		if present {
			ret = append(ret, name)
		}
	}
	add(ViewStandings, !ins.Standings.IsUnset())
	add(ViewLaps, !ins.Laps.IsUnset())
	add(ViewFastestLap, !ins.FastestLap.IsUnset())
	add(ViewAverageLapTimes, !ins.AverageLapTimes.IsUnset())
	add(ViewCarData, !ins.CarData.IsUnset())
	add(ViewStints, !ins.Stints.IsUnset())
	add(ViewTyres, !ins.Tyres.IsUnset())
	if ins.Pits != nil {
		ret = append(ret, ins.Pits.Name())
	}
	add(ViewRaceEvents, !ins.RaceEvents.IsUnset())
	add(ViewWeather, !ins.Weather.IsUnset())
	add(ViewTeamRadio, !ins.TeamRadio.IsUnset())
	return ret
}

// Has reports whether the view name is present
func (ins *Insights) Has(name string) bool {
	for _, n := range ins.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Views returns the present views by name. A view in state null maps to nil.
//
//nolint:cyclop // one branch per view
func (ins *Insights) Views() map[string]any {
	ret := map[string]any{}
	if v, ok := ins.Standings.Get(); ok {
		ret[ViewStandings] = v
	}
	if v, ok := ins.Laps.Get(); ok {
		ret[ViewLaps] = v
	}
	if !ins.FastestLap.IsUnset() {
		var v any
		if fl, ok := ins.FastestLap.Get(); ok {
			v = fl
		}
		ret[ViewFastestLap] = v
	}
	if !ins.AverageLapTimes.IsUnset() {
		var v any
		if avg, ok := ins.AverageLapTimes.Get(); ok {
			v = avg
		}
		ret[ViewAverageLapTimes] = v
	}
	if v, ok := ins.CarData.Get(); ok {
		ret[ViewCarData] = v
	}
	if v, ok := ins.Stints.Get(); ok {
		ret[ViewStints] = v
	}
	if v, ok := ins.Tyres.Get(); ok {
		ret[ViewTyres] = v
	}
	if ins.Pits != nil {
		ret[ins.Pits.Name()] = ins.Pits
	}
	if v, ok := ins.RaceEvents.Get(); ok {
		ret[ViewRaceEvents] = v
	}
	if v, ok := ins.Weather.Get(); ok {
		ret[ViewWeather] = v
	}
	if v, ok := ins.TeamRadio.Get(); ok {
		ret[ViewTeamRadio] = v
	}
	return ret
}

func clone(records []model.Record) []model.Record {
	ret := make([]model.Record, len(records))
	for i, r := range records {
		ret[i] = r.Clone()
	}
	return ret
}
