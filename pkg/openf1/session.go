package openf1

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/model"
)

// parallel requests for FetchSession
const fetchConcurrency = 3

// categories served by the REST api. car_data is large and must be requested
// explicitly, tyres are only available as live topic.
var defaultHistorical = []model.Category{
	model.CategoryIntervals,
	model.CategoryPosition,
	model.CategoryLaps,
	model.CategoryPit,
	model.CategoryRaceControl,
	model.CategoryWeather,
	model.CategoryStints,
	model.CategoryTeamRadio,
}

// DefaultHistoricalCategories returns the categories fetched by FetchSession if
// none are requested explicitly.
func DefaultHistoricalCategories() []model.Category {
	ret := make([]model.Category, len(defaultHistorical))
	copy(ret, defaultHistorical)
	return ret
}

// HasEndpoint reports whether cat can be fetched from the REST api
func HasEndpoint(cat model.Category) bool {
	return cat.Valid() && cat != model.CategoryTyres
}

// FetchSession fetches the requested categories of a session. The first
// failing request cancels the others and its error is returned.
//
//nolint:whitespace // editor/linter issue
func (c *Client) FetchSession(
	ctx context.Context, sessionKey int, cats ...model.Category,
) (model.Collections, error) {
	if len(cats) == 0 {
		cats = defaultHistorical
	}
	params := url.Values{}
	params.Set("session_key", strconv.Itoa(sessionKey))

	ret := model.Collections{}
	mu := sync.Mutex{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, cat := range cats {
		if !HasEndpoint(cat) {
			c.l.Debug("no endpoint for category", log.String("category", string(cat)))
			continue
		}
		g.Go(func() error {
			records, err := c.Fetch(gctx, string(cat), params)
			if err != nil {
				return fmt.Errorf("session %d: %w", sessionKey, err)
			}
			mu.Lock()
			ret[cat] = records
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ret, nil
}

// FetchSessionInfo returns the session record of sessionKey
func (c *Client) FetchSessionInfo(ctx context.Context, sessionKey int) (model.Record, error) {
	params := url.Values{}
	params.Set("session_key", strconv.Itoa(sessionKey))
	records, err := c.Fetch(ctx, "sessions", params)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("session %d not found", sessionKey)
	}
	return records[0], nil
}
