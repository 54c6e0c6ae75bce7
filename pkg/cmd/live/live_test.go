package live

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/buffer"
	"github.com/mpapenbr/openf1-insights/pkg/config"
	"github.com/mpapenbr/openf1-insights/pkg/model"
	"github.com/mpapenbr/openf1-insights/pkg/openf1"
	"github.com/mpapenbr/openf1-insights/pkg/stream"
)

func TestSelectSource(t *testing.T) {
	client := openf1.New()
	logger := log.Default()
	defer func(replay bool, url string) {
		config.Replay, config.StreamURL = replay, url
	}(config.Replay, config.StreamURL)

	tests := []struct {
		name       string
		replay     bool
		streamURL  string
		wantErr    bool
		wantReplay bool
	}{
		{name: "stream url missing", wantErr: true},
		{name: "stream url", streamURL: "nats://live.example.org:4222"},
		{name: "replay", replay: true, wantReplay: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config.Replay, config.StreamURL = tt.replay, tt.streamURL
			c, factory, err := selectSource(client, logger)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, factory)
			_, isReplay := c.(replayClient)
			assert.Equal(t, tt.wantReplay, isReplay)
		})
	}
}

func TestWaitForData_Replay(t *testing.T) {
	b := buffer.New()
	r := stream.NewReplay(model.Collections{
		model.CategoryPit: {{"driver_number": 3.0}, {"driver_number": 7.0}},
	}, b)
	require.NoError(t, r.Connect(context.Background()))
	defer r.Disconnect()

	require.NoError(t, waitForData(context.Background(), r, time.Hour))
	assert.Equal(t, 2, b.Len(model.CategoryPit))
}

type idleSource struct{}

func (idleSource) Connect(context.Context) error { return nil }
func (idleSource) Disconnect() error             { return nil }

func TestWaitForData_Timer(t *testing.T) {
	assert.NoError(t, waitForData(context.Background(), idleSource{}, time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, waitForData(ctx, idleSource{}, time.Hour), context.Canceled)
}
