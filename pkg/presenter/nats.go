package presenter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mpapenbr/openf1-insights/log"
)

const DefaultBucket = "insights"

type NatsOption func(*NatsPresenter)

// WithBucket stores the latest document per session in a KV bucket
func WithBucket(bucket string) NatsOption {
	return func(p *NatsPresenter) {
		p.bucket = bucket
	}
}

func WithSubjectPrefix(prefix string) NatsOption {
	return func(p *NatsPresenter) {
		p.prefix = prefix
	}
}

// NatsPresenter publishes documents on "<prefix>.<sessionKey>" and keeps the
// latest document of each session in a JetStream key value bucket.
type NatsPresenter struct {
	conn   *nats.Conn
	prefix string
	bucket string
	kv     jetstream.KeyValue
	l      *log.Logger
}

//nolint:whitespace // editor/linter issue
func NewNatsPresenter(
	ctx context.Context, conn *nats.Conn, opts ...NatsOption,
) (*NatsPresenter, error) {
	ret := &NatsPresenter{
		conn:   conn,
		prefix: "insights",
		l:      log.Default().Named("presenter.nats"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.bucket != "" {
		js, err := jetstream.New(conn)
		if err != nil {
			return nil, err
		}
		ret.kv, err = js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      ret.bucket,
			Description: "latest insights per session",
			History:     1,
		})
		if err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", ret.bucket, err)
		}
	}
	return ret, nil
}

func (p *NatsPresenter) Subject(sessionKey int) string {
	return fmt.Sprintf("%s.%d", p.prefix, sessionKey)
}

func (p *NatsPresenter) Publish(ctx context.Context, doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.Subject(doc.SessionKey), data); err != nil {
		return err
	}
	if p.kv == nil {
		return nil
	}
	rev, err := p.kv.Put(ctx, strconv.Itoa(doc.SessionKey), data)
	p.l.Debug("insights put",
		log.Int("sessionKey", doc.SessionKey),
		log.Int("dataLen", len(data)),
		log.Uint64("rev", rev))
	return err
}

// LatestFromBucket returns the stored document of sessionKey
//
//nolint:whitespace // editor/linter issue
func (p *NatsPresenter) LatestFromBucket(
	ctx context.Context, sessionKey int,
) (*Document, error) {
	if p.kv == nil {
		return nil, fmt.Errorf("no bucket configured")
	}
	entry, err := p.kv.Get(ctx, strconv.Itoa(sessionKey))
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(entry.Value(), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Relay passes documents published by other instances to sink until the
// returned subscription is drained. Undecodable messages are dropped.
func (p *NatsPresenter) Relay(ctx context.Context, sink Sink) (*nats.Subscription, error) {
	return p.conn.Subscribe(p.prefix+".*", func(msg *nats.Msg) {
		var doc Document
		if err := json.Unmarshal(msg.Data, &doc); err != nil {
			p.l.Warn("dropping undecodable document",
				log.String("subject", msg.Subject), log.ErrorField(err))
			return
		}
		if err := sink.Publish(ctx, &doc); err != nil {
			p.l.Warn("relaying document",
				log.Int("sessionKey", doc.SessionKey), log.ErrorField(err))
		}
	})
}
