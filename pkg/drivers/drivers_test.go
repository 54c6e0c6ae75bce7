package drivers

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/openf1-insights/pkg/model"
)

type fetcherFunc func(ctx context.Context, endpoint string, params url.Values) (
	[]model.Record, error)

//nolint:whitespace // editor/linter issue
func (f fetcherFunc) Fetch(
	ctx context.Context, endpoint string, params url.Values,
) ([]model.Record, error) {
	return f(ctx, endpoint, params)
}

func staticRoster(records ...model.Record) (Fetcher, *[]url.Values) {
	calls := []url.Values{}
	return fetcherFunc(func(_ context.Context, endpoint string, params url.Values) (
		[]model.Record, error,
	) {
		if endpoint != "drivers" {
			return nil, errors.New("unexpected endpoint " + endpoint)
		}
		calls = append(calls, params)
		return records, nil
	}), &calls
}

func TestLoad(t *testing.T) {
	f, calls := staticRoster(
		model.Record{
			"driver_number": 1.0, "full_name": "Max VERSTAPPEN",
			"team_name": "Red Bull Racing", "name_acronym": "VER", "team_colour": "3671C6",
		},
		model.Record{"driver_number": 44.0, "team_name": "Mercedes"},
		model.Record{"driver_number": 81.0, "full_name": "Oscar PIASTRI"},
		model.Record{"full_name": "no number"},
	)
	d, err := Load(context.Background(), f, 9158)
	require.NoError(t, err)
	require.Len(t, *calls, 1)
	assert.Equal(t, "9158", (*calls)[0].Get("session_key"))

	tests := []struct {
		num   int
		name  string
		team  string
		label string
	}{
		{1, "Max VERSTAPPEN", "Red Bull Racing", "Max VERSTAPPEN (Red Bull Racing)"},
		{44, "Driver 44", "Mercedes", "Driver 44 (Mercedes)"},
		{81, "Oscar PIASTRI", "Unknown", "Oscar PIASTRI (Unknown)"},
		{99, "#99", "Unknown", "#99"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, d.Name(tt.num))
			assert.Equal(t, tt.team, d.Team(tt.num))
			assert.Equal(t, tt.label, d.Label(tt.num))
		})
	}
	assert.Equal(t, []int{1, 44, 81}, d.Numbers())
	assert.True(t, d.Has(44))
	assert.False(t, d.Has(99))
	assert.Equal(t, 9158, d.SessionKey())
}

func TestLoad_Idempotent(t *testing.T) {
	f, _ := staticRoster(
		model.Record{"driver_number": 1.0, "full_name": "Max VERSTAPPEN"},
		model.Record{"driver_number": 16.0, "full_name": "Charles LECLERC"},
	)
	d := New()
	require.NoError(t, d.Load(context.Background(), f, 1))
	first := d.Drivers()
	require.NoError(t, d.Load(context.Background(), f, 1))
	if diff := cmp.Diff(first, d.Drivers()); diff != "" {
		t.Errorf("directory changed after reload (-first +second):\n%s", diff)
	}
}

func TestLoad_Error(t *testing.T) {
	ok, _ := staticRoster(model.Record{"driver_number": 1.0, "full_name": "Max"})
	d := New()
	require.NoError(t, d.Load(context.Background(), ok, 1))

	failing := fetcherFunc(func(context.Context, string, url.Values) ([]model.Record, error) {
		return nil, errors.New("boom")
	})
	err := d.Load(context.Background(), failing, 2)
	require.Error(t, err)
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, "Max", d.Name(1), "previous content must be kept")
	assert.Equal(t, 1, d.SessionKey())
}

func TestLoad_ReplacesWholesale(t *testing.T) {
	first, _ := staticRoster(model.Record{"driver_number": 1.0, "full_name": "Max"})
	second, _ := staticRoster(model.Record{"driver_number": 2.0, "full_name": "Logan"})
	d := New()
	require.NoError(t, d.Load(context.Background(), first, 1))
	require.NoError(t, d.Load(context.Background(), second, 2))
	assert.Equal(t, []int{2}, d.Numbers())
	assert.Equal(t, "#1", d.Name(1))
}
