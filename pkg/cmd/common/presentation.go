package common

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/mpapenbr/openf1-insights/log"
	"github.com/mpapenbr/openf1-insights/pkg/archive"
	"github.com/mpapenbr/openf1-insights/pkg/config"
	"github.com/mpapenbr/openf1-insights/pkg/presenter"
	"github.com/mpapenbr/openf1-insights/pkg/stream"
)

// Presentation bundles the presenters of a command
type Presentation struct {
	Presenter presenter.Presenter
	Latest    *presenter.Latest
	Hub       *presenter.Hub
	Archive   archive.Store
	nc        *nats.Conn
}

type PresentationOption func(*presentationConfig)

type presentationConfig struct {
	hub  bool
	nats bool
}

func WithHub() PresentationOption {
	return func(c *presentationConfig) {
		c.hub = true
	}
}

// WithNats publishes documents to NATS when a publish url is configured
func WithNats() PresentationOption {
	return func(c *presentationConfig) {
		c.nats = true
	}
}

// NewPresentation wires the log presenter and the document sinks. Documents
// are always kept in memory, the archive, websocket hub and NATS are optional.
//
//nolint:whitespace,funlen // editor/linter issue
func NewPresentation(
	ctx context.Context,
	logger *log.Logger,
	dir presenter.DirectoryFunc,
	opts ...PresentationOption,
) (*Presentation, error) {
	cfg := &presentationConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	ret := &Presentation{Latest: presenter.NewLatest()}
	sinks := presenter.NewSinks().Add("latest", ret.Latest)

	store, err := OpenArchive(ctx, logger)
	if err != nil {
		return nil, err
	}
	if store != nil {
		ret.Archive = store
		sinks.Add("archive", archive.NewSink(store,
			archive.WithRetention(config.ArchiveRetention)))
	}
	if cfg.hub {
		ret.Hub = presenter.NewHub(presenter.WithHubLogger(logger.Named("hub")))
		sinks.Add("hub", ret.Hub)
	}
	if cfg.nats && config.PublishNatsURL != "" {
		ret.nc, err = stream.DialNats(config.PublishNatsURL, "", "")
		if err != nil {
			ret.Close()
			return nil, err
		}
		natsOpts := []presenter.NatsOption{}
		if config.NatsBucket != "" {
			natsOpts = append(natsOpts, presenter.WithBucket(config.NatsBucket))
		}
		np, err := presenter.NewNatsPresenter(ctx, ret.nc, natsOpts...)
		if err != nil {
			ret.Close()
			return nil, err
		}
		sinks.Add("nats", np)
	}

	ret.Presenter = presenter.NewMulti().
		Add("log", presenter.NewLogPresenter(logger.Named("insights"))).
		Add("documents", presenter.Documents(dir, sinks))
	return ret, nil
}

func (p *Presentation) Close() error {
	var errs []error
	if p.Hub != nil {
		p.Hub.Close()
	}
	if p.nc != nil {
		errs = append(errs, p.nc.Drain())
	}
	if p.Archive != nil {
		errs = append(errs, p.Archive.Close())
	}
	return errors.Join(errs...)
}
