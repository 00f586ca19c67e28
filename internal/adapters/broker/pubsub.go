// Package broker builds the change broker the relay publishes to and
// consumes from.
package broker

import (
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Board/internal/config"
)

const (
	DriverGoChannel = "gochannel"
	DriverNATS      = "nats"
)

// PubSub is a publisher/subscriber pair; Close releases both.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	closers    []func() error
}

func (p *PubSub) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func New(cfg config.RelayConfig, logger watermill.LoggerAdapter) (*PubSub, error) {
	if logger == nil {
		logger = NewLogger()
	}
	switch cfg.Driver {
	case "", DriverGoChannel:
		// Blocking publish keeps changes for a room in publish order; the
		// relay acks in memory, so the wait is short.
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: true,
		}, logger)
		log.Info().Str("module", "broker").Str("driver", DriverGoChannel).Msg("change broker ready")
		return &PubSub{Publisher: ch, Subscriber: ch, closers: []func() error{ch.Close}}, nil
	case DriverNATS:
		return newNATS(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown relay driver %q", cfg.Driver)
	}
}

// newNATS uses core NATS subjects: every instance gets every change, and
// nothing is retained for sessions that are not connected.
func newNATS(cfg config.RelayConfig, logger watermill.LoggerAdapter) (*PubSub, error) {
	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.NatsURL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.NatsURL,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     5 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create nats subscriber: %w", err)
	}

	log.Info().Str("module", "broker").Str("driver", DriverNATS).Str("url", cfg.NatsURL).Msg("change broker ready")
	return &PubSub{
		Publisher:  NewBreakerPublisher(pub),
		Subscriber: sub,
		closers:    []func() error{sub.Close, pub.Close},
	}, nil
}
