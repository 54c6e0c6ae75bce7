package insights

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/openf1-insights/pkg/model"
)

func lap(driver, lapNo int, duration float64) model.Record {
	return model.Record{
		"driver_number": float64(driver),
		"lap_number":    float64(lapNo),
		"lap_duration":  duration,
	}
}

func sampleLaps() []model.Record {
	return []model.Record{
		lap(44, 1, 91.2),
		lap(44, 2, 89.7),
		lap(44, 3, 90.1),
		lap(1, 1, 88.5),
	}
}

func TestGenerate_FastestAndAverage(t *testing.T) {
	ins := Generate(model.Collections{model.CategoryLaps: sampleLaps()}, model.ModeHistorical)

	fl, ok := ins.FastestLap.Get()
	require.True(t, ok)
	assert.Equal(t, FastestLap{DriverNumber: 1, LapNumber: 1, Duration: 88.5}, fl)

	avg, ok := ins.AverageLapTimes.Get()
	require.True(t, ok)
	require.Len(t, avg, 2)
	assert.Equal(t, 1, avg[0].DriverNumber)
	assert.True(t, decimal.RequireFromString("88.5").Equal(avg[0].Average))
	assert.Equal(t, 44, avg[1].DriverNumber)
	assert.InDelta(t, 90.33, avg[1].Average.InexactFloat64(), 0.01)
	assert.Equal(t, 3, avg[1].Laps)
}

func TestGenerate_LiveHasNoAverage(t *testing.T) {
	tests := []struct {
		name string
		raw  model.Collections
	}{
		{"no input", model.Collections{}},
		{"empty laps", model.Collections{model.CategoryLaps: {}}},
		{"laps", model.Collections{model.CategoryLaps: sampleLaps()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ins := Generate(tt.raw, model.ModeLive)
			assert.True(t, ins.AverageLapTimes.IsUnset())
			assert.NotContains(t, ins.Names(), ViewAverageLapTimes)
			assert.NotContains(t, ins.Views(), ViewAverageLapTimes)
		})
	}
}

func TestGenerate_EmptyVersusAbsentLaps(t *testing.T) {
	absent := Generate(model.Collections{}, model.ModeHistorical)
	assert.True(t, absent.FastestLap.IsUnset())
	assert.True(t, absent.AverageLapTimes.IsUnset())

	empty := Generate(model.Collections{
		model.CategoryLaps: {{"driver_number": 1.0, "lap_number": 1.0}},
	}, model.ModeHistorical)
	assert.True(t, empty.FastestLap.IsNull())
	assert.True(t, empty.AverageLapTimes.IsNull())
	assert.Contains(t, empty.Names(), ViewFastestLap)
	views := empty.Views()
	assert.Contains(t, views, ViewFastestLap)
	assert.Nil(t, views[ViewFastestLap])
}

func pitRecords() []model.Record {
	return []model.Record{
		{"driver_number": 3.0, "lap_number": 10.0, "pit_duration": 22.1, "date": "d1"},
		{"driver_number": 7.0, "lap_number": 12.0, "pit_duration": 23.4, "date": "d2"},
		{"driver_number": 3.0, "lap_number": 30.0, "date": "d3"},
	}
}

func TestGenerate_Pits(t *testing.T) {
	raw := model.Collections{model.CategoryPit: pitRecords()}

	hist := Generate(raw, model.ModeHistorical)
	assert.Equal(t, PitCounts{3: 2, 7: 1}, hist.Pits)
	assert.Contains(t, hist.Names(), ViewPitCounts)
	assert.NotContains(t, hist.Names(), ViewRecentPits)

	live := Generate(raw, model.ModeLive)
	assert.NotContains(t, live.Names(), ViewPitCounts)
	recent, ok := live.Pits.(RecentPits)
	require.True(t, ok)
	want := RecentPits{
		{DriverNumber: 3, LapNumber: 10, Duration: 22.1, Date: "d1"},
		{DriverNumber: 7, LapNumber: 12, Duration: 23.4, Date: "d2"},
		{DriverNumber: 3, LapNumber: 30, Duration: NoSeconds, Date: "d3"},
	}
	if diff := cmp.Diff(want, recent); diff != "" {
		t.Errorf("recent pits mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerate_RecentPitsBounded(t *testing.T) {
	records := []model.Record{}
	for i := 1; i <= 25; i++ {
		records = append(records, model.Record{"driver_number": 1.0, "lap_number": float64(i)})
	}
	ins := Generate(model.Collections{model.CategoryPit: records}, model.ModeLive)
	recent := ins.Pits.(RecentPits)
	require.Len(t, recent, RecentPitLimit)
	assert.Equal(t, 6, recent[0].LapNumber)
	assert.Equal(t, 25, recent[RecentPitLimit-1].LapNumber)

	ins = Generate(model.Collections{model.CategoryPit: records}, model.ModeLive,
		WithRecentPitLimit(5))
	assert.Len(t, ins.Pits.(RecentPits), 5)
}

func TestGenerate_Laps(t *testing.T) {
	records := []model.Record{
		{"driver_number": 44.0, "lap_number": 2.0, "duration_sector_1": 30.1},
		{"driver_number": 44.0, "lap_number": 1.0, "lap_duration": 95.0,
			"duration_sector_1": 31.0, "duration_sector_2": 32.0, "duration_sector_3": 32.0,
			"is_pit_out_lap": true},
		// lap 2 completed, replaces the partial record above
		{"driver_number": 44.0, "lap_number": 2.0, "lap_duration": 90.0,
			"duration_sector_1": 30.1, "duration_sector_2": 29.9},
		{"lap_number": 1.0, "lap_duration": 80.0},
	}
	ins := Generate(model.Collections{model.CategoryLaps: records}, model.ModeLive)
	laps, ok := ins.Laps.Get()
	require.True(t, ok)
	want := []Lap{
		{DriverNumber: 44, LapNumber: 1, Duration: 95, Sector1: 31, Sector2: 32, Sector3: 32,
			PitOutLap: true},
		{DriverNumber: 44, LapNumber: 2, Duration: 90, Sector1: 30.1, Sector2: 29.9,
			Sector3: NoSeconds},
	}
	assert.Equal(t, want, laps)
	assert.Equal(t, NotAvailable, laps[1].Sector3.String())
}

func TestGenerate_Standings(t *testing.T) {
	raw := model.Collections{
		model.CategoryPosition: {
			{"driver_number": 1.0, "position": 2.0},
			{"driver_number": 16.0, "position": 1.0},
			{"driver_number": 1.0, "position": 1.0},
			{"driver_number": 16.0, "position": 2.0},
		},
		model.CategoryIntervals: {
			{"driver_number": 1.0, "gap_to_leader": 0.0, "interval": 0.0},
			{"driver_number": 16.0, "gap_to_leader": 1.234, "interval": 1.234},
			{"driver_number": 2.0, "gap_to_leader": "+1 LAP", "interval": nil},
			{"driver_number": 20.0, "gap_to_leader": 45.5, "interval": 3.1},
		},
	}
	ins := Generate(raw, model.ModeLive)
	got, ok := ins.Standings.Get()
	require.True(t, ok)
	want := []Standing{
		{DriverNumber: 1, Position: 1, GapToLeader: "0", Interval: "0"},
		{DriverNumber: 16, Position: 2, GapToLeader: "1.234", Interval: "1.234"},
		{DriverNumber: 20, Position: -1, GapToLeader: "45.5", Interval: "3.1"},
		{DriverNumber: 2, Position: -1, GapToLeader: "+1 LAP", Interval: NotAvailable},
	}
	assert.Equal(t, want, got)
}

func TestGenerate_StintsAndTyres(t *testing.T) {
	raw := model.Collections{
		model.CategoryStints: {
			{"driver_number": 4.0, "stint_number": 2.0, "compound": "HARD",
				"lap_start": 20.0, "lap_end": 40.0, "tyre_age_at_start": 0.0},
			{"driver_number": 4.0, "stint_number": 1.0, "compound": "MEDIUM",
				"lap_start": 1.0, "lap_end": 19.0, "tyre_age_at_start": 3.0},
			{"driver_number": 81.0, "stint_number": 1.0, "lap_start": 1.0},
		},
		model.CategoryTyres: {
			{"driver_number": 4.0, "compound": "MEDIUM", "tyre_age": 5.0},
			{"driver_number": 4.0, "compound": "HARD", "tyre_age": 1.0},
			{"driver_number": 81.0, "compound": "SOFT", "tyre_age_at_start": 2.0},
		},
	}
	ins := Generate(raw, model.ModeHistorical)
	stints, ok := ins.Stints.Get()
	require.True(t, ok)
	want := []DriverStints{
		{DriverNumber: 4, Stints: []Stint{
			{StintNumber: 1, Compound: "MEDIUM", TyreAgeAtStart: 3, LapStart: 1, LapEnd: 19},
			{StintNumber: 2, Compound: "HARD", TyreAgeAtStart: 0, LapStart: 20, LapEnd: 40},
		}},
		{DriverNumber: 81, Stints: []Stint{
			{StintNumber: 1, Compound: NotAvailable, TyreAgeAtStart: -1, LapStart: 1, LapEnd: -1},
		}},
	}
	if diff := cmp.Diff(want, stints); diff != "" {
		t.Errorf("stints mismatch (-want +got):\n%s", diff)
	}

	tyres, ok := ins.Tyres.Get()
	require.True(t, ok)
	assert.Equal(t, []TyreState{
		{DriverNumber: 4, Compound: "HARD", TyreAge: 1},
		{DriverNumber: 81, Compound: "SOFT", TyreAge: 2},
	}, tyres)
}

func TestGenerate_EventsWeatherRadio(t *testing.T) {
	raw := model.Collections{
		model.CategoryRaceControl: {
			{"date": "t2", "category": "Flag", "flag": "YELLOW", "message": "YELLOW IN SECTOR 2",
				"lap_number": 3.0},
			{"date": "t1", "category": "Other", "message": "DRS ENABLED", "flag": nil},
			{"date": "t3", "category": "Flag", "flag": "BLUE", "message": "BLUE FLAG FOR CAR 2",
				"driver_number": 2.0},
		},
		model.CategoryWeather: {
			{"air_temperature": 20.0},
			{"air_temperature": 21.5, "rainfall": 0.0},
		},
		model.CategoryTeamRadio: {
			{"driver_number": 1.0, "date": "r1", "recording_url": "https://example.org/1.mp3"},
			{"driver_number": 11.0, "date": "r2"},
		},
	}
	ins := Generate(raw, model.ModeLive)

	events, ok := ins.RaceEvents.Get()
	require.True(t, ok)
	assert.Equal(t, []RaceEvent{
		{Date: "t2", Category: "Flag", Flag: "YELLOW", Message: "YELLOW IN SECTOR 2", LapNumber: 3},
		{Date: "t1", Category: "Other", Message: "DRS ENABLED"},
		{Date: "t3", Category: "Flag", Flag: "BLUE", Message: "BLUE FLAG FOR CAR 2",
			DriverNumber: 2},
	}, events)

	weather, ok := ins.Weather.Get()
	require.True(t, ok)
	assert.Equal(t, model.Record{"air_temperature": 21.5, "rainfall": 0.0}, weather)

	radio, ok := ins.TeamRadio.Get()
	require.True(t, ok)
	assert.Equal(t, []RadioClip{
		{DriverNumber: 1, Date: "r1", URL: "https://example.org/1.mp3"},
		{DriverNumber: 11, Date: "r2", URL: "No URL"},
	}, radio)
}

func TestGenerate_AbsentCategoriesOmitViews(t *testing.T) {
	ins := Generate(model.Collections{model.CategoryWeather: {{"humidity": 50.0}}},
		model.ModeHistorical)
	assert.Equal(t, []string{ViewWeather}, ins.Names())
	assert.Nil(t, ins.Pits)
	assert.Len(t, ins.Views(), 1)
}

func TestGenerate_Pure(t *testing.T) {
	raw := model.Collections{
		model.CategoryLaps:      sampleLaps(),
		model.CategoryPit:       pitRecords(),
		model.CategoryCarData:   {{"driver_number": 1.0, "speed": 301.0, "rpm": 11000.0}},
		model.CategoryIntervals: {{"driver_number": 1.0, "gap_to_leader": 0.0}},
	}
	for _, mode := range []model.Mode{model.ModeHistorical, model.ModeLive} {
		t.Run(mode.String(), func(t *testing.T) {
			first := Generate(raw, mode)
			second := Generate(raw, mode)
			assert.Equal(t, first.Names(), second.Names())
			assert.Equal(t, first.Views(), second.Views())
		})
	}
	// input unchanged
	assert.Len(t, raw[model.CategoryLaps], 4)
	assert.Equal(t, 91.2, raw[model.CategoryLaps][0]["lap_duration"])
}

func TestSeconds_JSON(t *testing.T) {
	b, err := Seconds(88.5).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "88.5", string(b))
	b, err = NoSeconds.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"N/A"`, string(b))
}
