package drivers

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"sync"

	"github.com/samber/lo"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/model"
)

const (
	endpoint    = "drivers"
	unknownTeam = "Unknown"
)

// Fetcher retrieves records of an OpenF1 endpoint
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string, params url.Values) ([]model.Record, error)
}

// Directory resolves driver numbers of one session to names and teams.
// A Directory is safe for concurrent use.
type Directory struct {
	mu         sync.RWMutex
	sessionKey int
	drivers    map[int]model.Driver
	l          *log.Logger
}

func New() *Directory {
	return &Directory{
		drivers: map[int]model.Driver{},
		l:       log.Default().Named("drivers"),
	}
}

// Load creates a directory populated with the roster of sessionKey
func Load(ctx context.Context, f Fetcher, sessionKey int) (*Directory, error) {
	d := New()
	if err := d.Load(ctx, f, sessionKey); err != nil {
		return nil, err
	}
	return d, nil
}

// Load fetches the roster of sessionKey and replaces the current content.
// On error the directory keeps its previous content.
func (d *Directory) Load(ctx context.Context, f Fetcher, sessionKey int) error {
	params := url.Values{}
	params.Set("session_key", strconv.Itoa(sessionKey))
	records, err := f.Fetch(ctx, endpoint, params)
	if err != nil {
		return fmt.Errorf("loading drivers for session %d: %w", sessionKey, err)
	}
	d.Replace(sessionKey, FromRecords(records))
	return nil
}

// Replace sets the content of the directory
func (d *Directory) Replace(sessionKey int, drivers map[int]model.Driver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessionKey = sessionKey
	d.drivers = drivers
	d.l.Debug("directory replaced",
		log.Int("sessionKey", sessionKey),
		log.Int("drivers", len(drivers)))
}

// FromRecords converts roster records. Records without a usable driver number
// are skipped, missing names and teams get a placeholder.
func FromRecords(records []model.Record) map[int]model.Driver {
	ret := make(map[int]model.Driver, len(records))
	for _, r := range records {
		num, ok := r.DriverNumber()
		if !ok {
			continue
		}
		ret[num] = model.Driver{
			Number:     num,
			FullName:   r.StringOr("full_name", fmt.Sprintf("Driver %d", num)),
			TeamName:   r.StringOr("team_name", unknownTeam),
			Acronym:    r.StringOr("name_acronym", ""),
			TeamColour: r.StringOr("team_colour", ""),
		}
	}
	return ret
}

func (d *Directory) SessionKey() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sessionKey
}

func (d *Directory) Get(num int) (model.Driver, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.drivers[num]
	return v, ok
}

func (d *Directory) Has(num int) bool {
	_, ok := d.Get(num)
	return ok
}

// Name returns the full name of the driver or "#<num>" if unknown
func (d *Directory) Name(num int) string {
	if v, ok := d.Get(num); ok {
		return v.FullName
	}
	return model.DriverLabel(num)
}

// Team returns the team name of the driver or "Unknown"
func (d *Directory) Team(num int) string {
	if v, ok := d.Get(num); ok {
		return v.TeamName
	}
	return unknownTeam
}

// Label is the display label used by presenters, e.g. "Max Verstappen (Red Bull Racing)"
func (d *Directory) Label(num int) string {
	if v, ok := d.Get(num); ok {
		return fmt.Sprintf("%s (%s)", v.FullName, v.TeamName)
	}
	return model.DriverLabel(num)
}

// Numbers returns the known driver numbers in ascending order
func (d *Directory) Numbers() []int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ret := lo.Keys(d.drivers)
	slices.Sort(ret)
	return ret
}

// Drivers returns all drivers ordered by number
func (d *Directory) Drivers() []model.Driver {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ret := lo.Values(d.drivers)
	slices.SortFunc(ret, func(a, b model.Driver) int { return a.Number - b.Number })
	return ret
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.drivers)
}
