package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/metrics"
	"github.com/mpapenbr/openf1-insights/pkg/model"
)

type (
	NatsOption func(*NatsSource)
	// NatsSource subscribes to v1.<category> subjects. When connected to the
	// MQTT gateway of a NATS server the topics v1/<category> are delivered on
	// these subjects.
	NatsSource struct {
		conn       *nats.Conn
		sink       Sink
		categories []model.Category
		ownsConn   bool
		l          *log.Logger

		mu        sync.Mutex
		connected bool
		subs      []*nats.Subscription
	}
)

func WithCategories(cats ...model.Category) NatsOption {
	return func(s *NatsSource) {
		s.categories = cats
	}
}

// WithOwnedConn closes the connection on Disconnect
func WithOwnedConn() NatsOption {
	return func(s *NatsSource) {
		s.ownsConn = true
	}
}

func WithNatsLogger(l *log.Logger) NatsOption {
	return func(s *NatsSource) {
		s.l = l
	}
}

func NewNatsSource(conn *nats.Conn, sink Sink, opts ...NatsOption) *NatsSource {
	ret := &NatsSource{
		conn:       conn,
		sink:       sink,
		categories: model.AllCategories(),
		l:          log.Default().Named("stream"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// DialNats connects to a NATS server. user and token are optional credentials.
func DialNats(url, user, token string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("f1i"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", log.ErrorField(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", log.String("url", c.ConnectedUrl()))
		}),
	}
	if user != "" {
		opts = append(opts, nats.UserInfo(user, token))
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", url, err)
	}
	return conn, nil
}

func (s *NatsSource) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return ErrAlreadyConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// handlers wait for the lock, so nothing is delivered before we are done
	s.connected = true
	fail := func(err error) error {
		s.connected = false
		//nolint:errcheck // already failing
		s.unsubscribe()
		return err
	}
	for _, cat := range s.categories {
		sub, err := s.conn.Subscribe(cat.Subject(), s.handle)
		if err != nil {
			return fail(fmt.Errorf("subscribing %s: %w", cat.Subject(), err))
		}
		s.subs = append(s.subs, sub)
	}
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fail(fmt.Errorf("flushing subscriptions: %w", err))
	}
	s.l.Info("live stream connected", log.Int("subscriptions", len(s.subs)))
	return nil
}

func (s *NatsSource) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	s.connected = false
	err := s.unsubscribe()
	if s.ownsConn {
		s.conn.Close()
	}
	s.l.Info("live stream disconnected")
	return err
}

func (s *NatsSource) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *NatsSource) unsubscribe() error {
	var errs []error
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	s.subs = nil
	return errors.Join(errs...)
}

func (s *NatsSource) handle(msg *nats.Msg) {
	cat, ok := model.ParseTopic(msg.Subject)
	if !ok {
		s.l.Debug("ignoring message", log.String("subject", msg.Subject))
		return
	}
	records, err := decodePayload(msg.Data)
	if err != nil {
		metrics.RecordsDropped.WithLabelValues(string(cat), "decode").Inc()
		s.l.Warn("could not decode message",
			log.String("subject", msg.Subject),
			log.ErrorField(err))
		return
	}
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if !connected {
		return
	}
	for _, rec := range records {
		if s.sink.Append(cat, rec) {
			metrics.RecordsIngested.WithLabelValues(string(cat)).Inc()
		} else {
			metrics.RecordsDropped.WithLabelValues(string(cat), "closed").Inc()
		}
	}
}

// decodePayload accepts a single JSON object or an array of objects
func decodePayload(data []byte) ([]model.Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var ret []model.Record
		if err := json.Unmarshal(trimmed, &ret); err != nil {
			return nil, err
		}
		return ret, nil
	}
	var rec model.Record
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.New("empty payload")
	}
	return []model.Record{rec}, nil
}
