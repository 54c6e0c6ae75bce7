package presenter

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/drivers"
	"github.com/mpapenbr/openf1-insights/pkg/insights"
	"github.com/mpapenbr/openf1-insights/pkg/metrics"
	"github.com/mpapenbr/openf1-insights/pkg/model"
)

// CarDataLimit is the default number of telemetry samples kept in a document
const CarDataLimit = 200

// Document is the display ready form of Insights. Driver numbers are resolved
// to labels. Views that could not be rendered are listed in Errors.
type Document struct {
	SessionKey int                        `json:"sessionKey"`
	Mode       string                     `json:"mode"`
	Generated  time.Time                  `json:"generated"`
	Views      map[string]json.RawMessage `json:"views"`
	Errors     map[string]string          `json:"errors,omitempty"`
}

type (
	StandingRow struct {
		Position     int    `json:"position"`
		DriverNumber int    `json:"driverNumber"`
		Driver       string `json:"driver"`
		Team         string `json:"team"`
		GapToLeader  string `json:"gapToLeader"`
		Interval     string `json:"interval"`
	}
	LapRow struct {
		insights.Lap
		Driver string `json:"driver"`
	}
	FastestLapRow struct {
		insights.FastestLap
		Driver string `json:"driver"`
	}
	AverageLapRow struct {
		insights.AverageLapTime
		Driver string `json:"driver"`
	}
	StintRow struct {
		insights.DriverStints
		Driver string `json:"driver"`
	}
	TyreRow struct {
		insights.TyreState
		Driver string `json:"driver"`
	}
	PitCountRow struct {
		DriverNumber int    `json:"driverNumber"`
		Driver       string `json:"driver"`
		Count        int    `json:"count"`
	}
	PitEventRow struct {
		insights.PitEvent
		Driver string `json:"driver"`
	}
	RaceEventRow struct {
		insights.RaceEvent
		Driver string `json:"driver,omitempty"`
	}
	RadioRow struct {
		insights.RadioClip
		Driver string `json:"driver"`
	}
)

type (
	RenderOption func(*renderConfig)
	renderConfig struct {
		carDataLimit int
		now          func() time.Time
	}
	viewFunc func(ins *insights.Insights, dir *drivers.Directory, cfg *renderConfig) any
)

// WithCarDataLimit bounds the telemetry samples of a document to the most recent n
func WithCarDataLimit(n int) RenderOption {
	return func(c *renderConfig) {
		c.carDataLimit = n
	}
}

func WithClock(now func() time.Time) RenderOption {
	return func(c *renderConfig) {
		c.now = now
	}
}

var viewRenderers = map[string]viewFunc{
	insights.ViewStandings:       renderStandings,
	insights.ViewLaps:            renderLaps,
	insights.ViewFastestLap:      renderFastestLap,
	insights.ViewAverageLapTimes: renderAverageLapTimes,
	insights.ViewCarData:         renderCarData,
	insights.ViewStints:          renderStints,
	insights.ViewTyres:           renderTyres,
	insights.ViewPitCounts:       renderPits,
	insights.ViewRecentPits:      renderPits,
	insights.ViewRaceEvents:      renderRaceEvents,
	insights.ViewWeather:         renderWeather,
	insights.ViewTeamRadio:       renderTeamRadio,
}

// Render converts ins into a Document. Every view is rendered on its own, a
// failing view is reported in Document.Errors and does not affect the others.
// A nil directory labels all drivers with "#<number>".
//
//nolint:whitespace // editor/linter issue
func Render(
	sessionKey int, ins *insights.Insights, dir *drivers.Directory, opts ...RenderOption,
) *Document {
	cfg := &renderConfig{carDataLimit: CarDataLimit, now: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}
	if dir == nil {
		dir = drivers.New()
	}
	doc := &Document{
		SessionKey: sessionKey,
		Mode:       ins.Mode.String(),
		Generated:  cfg.now().UTC(),
		Views:      map[string]json.RawMessage{},
	}
	for _, name := range ins.Names() {
		data, err := renderView(name, ins, dir, cfg)
		if err != nil {
			metrics.RenderErrors.WithLabelValues(name).Inc()
			log.Default().Named("presenter").Warn("view not rendered",
				log.String("view", name),
				log.Int("sessionKey", sessionKey),
				log.ErrorField(err))
			if doc.Errors == nil {
				doc.Errors = map[string]string{}
			}
			doc.Errors[name] = err.Error()
			continue
		}
		doc.Views[name] = data
	}
	return doc
}

//nolint:whitespace // editor/linter issue
func renderView(
	name string, ins *insights.Insights, dir *drivers.Directory, cfg *renderConfig,
) (data json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	fn, ok := viewRenderers[name]
	if !ok {
		return nil, fmt.Errorf("no renderer for view %s", name)
	}
	return json.Marshal(fn(ins, dir, cfg))
}

func renderStandings(ins *insights.Insights, dir *drivers.Directory, _ *renderConfig) any {
	return lo.Map(ins.Standings.GetOrZero(), func(s insights.Standing, _ int) StandingRow {
		return StandingRow{
			Position:     s.Position,
			DriverNumber: s.DriverNumber,
			Driver:       dir.Name(s.DriverNumber),
			Team:         dir.Team(s.DriverNumber),
			GapToLeader:  s.GapToLeader,
			Interval:     s.Interval,
		}
	})
}

func renderLaps(ins *insights.Insights, dir *drivers.Directory, _ *renderConfig) any {
	return lo.Map(ins.Laps.GetOrZero(), func(l insights.Lap, _ int) LapRow {
		return LapRow{Lap: l, Driver: dir.Name(l.DriverNumber)}
	})
}

func renderFastestLap(ins *insights.Insights, dir *drivers.Directory, _ *renderConfig) any {
	fl, ok := ins.FastestLap.Get()
	if !ok {
		return nil
	}
	return FastestLapRow{FastestLap: fl, Driver: dir.Label(fl.DriverNumber)}
}

//nolint:whitespace // editor/linter issue
func renderAverageLapTimes(
	ins *insights.Insights, dir *drivers.Directory, _ *renderConfig,
) any {
	avg, ok := ins.AverageLapTimes.Get()
	if !ok {
		return nil
	}
	return lo.Map(avg, func(a insights.AverageLapTime, _ int) AverageLapRow {
		return AverageLapRow{AverageLapTime: a, Driver: dir.Name(a.DriverNumber)}
	})
}

// renderCarData keeps the most recent samples and adds the driver label
func renderCarData(ins *insights.Insights, dir *drivers.Directory, cfg *renderConfig) any {
	samples := ins.CarData.GetOrZero()
	if cfg.carDataLimit > 0 && len(samples) > cfg.carDataLimit {
		samples = samples[len(samples)-cfg.carDataLimit:]
	}
	return lo.Map(samples, func(r model.Record, _ int) model.Record {
		ret := r.Clone()
		if num, ok := r.DriverNumber(); ok {
			ret["driver"] = dir.Name(num)
		}
		return ret
	})
}

func renderStints(ins *insights.Insights, dir *drivers.Directory, _ *renderConfig) any {
	return lo.Map(ins.Stints.GetOrZero(), func(s insights.DriverStints, _ int) StintRow {
		return StintRow{DriverStints: s, Driver: dir.Name(s.DriverNumber)}
	})
}

func renderTyres(ins *insights.Insights, dir *drivers.Directory, _ *renderConfig) any {
	return lo.Map(ins.Tyres.GetOrZero(), func(s insights.TyreState, _ int) TyreRow {
		return TyreRow{TyreState: s, Driver: dir.Name(s.DriverNumber)}
	})
}

func renderPits(ins *insights.Insights, dir *drivers.Directory, _ *renderConfig) any {
	switch p := ins.Pits.(type) {
	case insights.PitCounts:
		nums := lo.Keys(p)
		slices.Sort(nums)
		return lo.Map(nums, func(num int, _ int) PitCountRow {
			return PitCountRow{DriverNumber: num, Driver: dir.Name(num), Count: p[num]}
		})
	case insights.RecentPits:
		return lo.Map(p, func(e insights.PitEvent, _ int) PitEventRow {
			return PitEventRow{PitEvent: e, Driver: dir.Name(e.DriverNumber)}
		})
	default:
		panic(fmt.Sprintf("unsupported pit insight %T", p))
	}
}

func renderRaceEvents(ins *insights.Insights, dir *drivers.Directory, _ *renderConfig) any {
	return lo.Map(ins.RaceEvents.GetOrZero(), func(e insights.RaceEvent, _ int) RaceEventRow {
		row := RaceEventRow{RaceEvent: e}
		if e.DriverNumber > 0 {
			row.Driver = dir.Name(e.DriverNumber)
		}
		return row
	})
}

func renderWeather(ins *insights.Insights, _ *drivers.Directory, _ *renderConfig) any {
	return ins.Weather.GetOrZero()
}

func renderTeamRadio(ins *insights.Insights, dir *drivers.Directory, _ *renderConfig) any {
	return lo.Map(ins.TeamRadio.GetOrZero(), func(c insights.RadioClip, _ int) RadioRow {
		return RadioRow{RadioClip: c, Driver: dir.Name(c.DriverNumber)}
	})
}
