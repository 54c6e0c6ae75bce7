package stream

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/openf1-insights/pkg/buffer"
	"github.com/mpapenbr/openf1-insights/pkg/model"
)

type item struct {
	cat model.Category
	rec model.Record
}

type collectSink struct {
	mu    sync.Mutex
	items []item
}

func (s *collectSink) Append(cat model.Category, rec model.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item{cat, rec})
	return true
}

func (s *collectSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    int
		wantErr bool
	}{
		{"object", `{"driver_number": 1, "position": 3}`, 1, false},
		{"array", ` [{"driver_number": 1}, {"driver_number": 2}]`, 2, false},
		{"invalid", `{"driver_number":`, 0, true},
		{"null", `null`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodePayload([]byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestNatsSource_Handle(t *testing.T) {
	sink := &collectSink{}
	s := NewNatsSource(nil, sink)

	msg := &nats.Msg{Subject: "v1.laps", Data: []byte(`{"driver_number":1,"lap_number":2}`)}
	s.handle(msg)
	assert.Equal(t, 0, sink.len(), "records must not be passed before connect")

	s.connected = true
	s.handle(msg)
	s.handle(&nats.Msg{Subject: "v1.unknown", Data: []byte(`{}`)})
	s.handle(&nats.Msg{Subject: "v1.pit", Data: []byte(`garbage`)})
	require.Equal(t, 1, sink.len())
	assert.Equal(t, model.CategoryLaps, sink.items[0].cat)
	lap, _ := sink.items[0].rec.Int("lap_number")
	assert.Equal(t, 2, lap)
}

func TestNatsSource_Live(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	conn, err := DialNats(url, "", "")
	require.NoError(t, err)
	defer conn.Close()

	buf := buffer.New()
	s := NewNatsSource(conn, buf)
	require.NoError(t, s.Connect(context.Background()))
	assert.ErrorIs(t, s.Connect(context.Background()), ErrAlreadyConnected)

	require.NoError(t, conn.Publish("v1.weather", []byte(`{"air_temperature":28.1}`)))
	require.NoError(t, conn.Flush())
	require.Eventually(t, func() bool { return buf.Len(model.CategoryWeather) == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Disconnect())
	require.NoError(t, conn.Publish("v1.weather", []byte(`{"air_temperature":28.2}`)))
	require.NoError(t, conn.Flush())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, buf.Len(model.CategoryWeather))
	assert.ErrorIs(t, s.Disconnect(), ErrNotConnected)
}

func TestReplay_Order(t *testing.T) {
	data := model.Collections{
		model.CategoryLaps: {
			{"date_start": "2023-09-17T12:03:00+00:00", "lap_number": 2.0},
			{"date_start": "2023-09-17T12:01:00+00:00", "lap_number": 1.0},
		},
		model.CategoryRaceControl: {
			{"date": "2023-09-17T12:02:00+00:00", "message": "GREEN LIGHT"},
			{"message": "no timestamp"},
		},
	}
	sink := &collectSink{}
	r := NewReplay(data, sink)
	require.Equal(t, 4, r.Len())
	require.NoError(t, r.Connect(context.Background()))
	assert.ErrorIs(t, r.Connect(context.Background()), ErrAlreadyConnected)
	<-r.Done()
	require.NoError(t, r.Disconnect())

	require.Equal(t, 4, sink.len())
	order := []string{}
	for _, it := range sink.items {
		if lap, ok := it.rec.Int("lap_number"); ok {
			order = append(order, model.DriverLabel(lap))
		} else {
			order = append(order, it.rec.StringOr("message", ""))
		}
	}
	assert.Equal(t, []string{"#1", "GREEN LIGHT", "no timestamp", "#2"}, order)
}

func TestReplay_UndatedCategoryFirst(t *testing.T) {
	data := model.Collections{
		model.CategoryPit: {
			{"date": "2023-09-17T12:20:00+00:00", "driver_number": 3.0},
		},
		model.CategoryStints: {
			{"driver_number": 1.0, "stint_number": 1.0},
			{"driver_number": 1.0, "stint_number": 2.0},
		},
	}
	items := orderByTime(data)
	require.Len(t, items, 3)
	assert.Equal(t, model.CategoryStints, items[0].cat)
	assert.Equal(t, model.CategoryStints, items[1].cat)
	assert.Equal(t, model.CategoryPit, items[2].cat)
	n, _ := items[1].rec.Int("stint_number")
	assert.Equal(t, 2, n)
}

func TestReplay_Disconnect(t *testing.T) {
	data := model.Collections{
		model.CategoryWeather: {
			{"date": "2023-09-17T12:00:00+00:00"},
			{"date": "2023-09-17T12:10:00+00:00"},
		},
	}
	sink := &collectSink{}
	r := NewReplay(data, sink, WithSpeed(0.001))
	require.NoError(t, r.Connect(context.Background()))
	require.Eventually(t, func() bool { return sink.len() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, r.Disconnect())
	assert.Equal(t, 1, sink.len())
	assert.ErrorIs(t, r.Disconnect(), ErrNotConnected)
}
