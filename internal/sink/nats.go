package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/oxyio/netmon/internal/config"
	"github.com/oxyio/netmon/internal/errors"
	"github.com/oxyio/netmon/internal/logger"
	"github.com/oxyio/netmon/internal/stats"
)

// natsPublisher is the part of *nats.Conn the sink uses.
type natsPublisher interface {
	Publish(subject string, data []byte) error
	Close()
}

// NATS publishes each category as a JSON event on
// <prefix>.device.<id>.<category>. It does not index.
type NATS struct {
	conn   natsPublisher
	prefix string
	log    logger.Logger
}

// NewNATS connects to the configured server.
func NewNATS(cfg config.NATSConfig, log logger.Logger) (*NATS, error) {
	if log == nil {
		log = logger.Noop()
	}

	opts := []nats.Option{
		nats.Name("netmon"),
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	} else if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSink,
			fmt.Sprintf("Couldn't connect to NATS at %s", cfg.URL),
			"Check nats.url or disable nats in netmon.yaml.")
	}

	log.Info("Connected to NATS at %s", nc.ConnectedUrl())
	return newNATS(nc, cfg.SubjectPrefix, log), nil
}

func newNATS(conn natsPublisher, prefix string, log logger.Logger) *NATS {
	return &NATS{conn: conn, prefix: prefix, log: log}
}

// Subject returns the subject used for a device's category.
func (n *NATS) Subject(deviceID string, category stats.Category) string {
	return topic(n.prefix, ".", deviceID, category)
}

// Publish sends the event for the category.
func (n *NATS) Publish(_ context.Context, deviceID string, category stats.Category, samples []stats.Sample) error {
	data, err := json.Marshal(newEvent(category, samples))
	if err != nil {
		return sinkError(err, "Couldn't encode samples")
	}

	subject := n.Subject(deviceID, category)
	if err := n.conn.Publish(subject, data); err != nil {
		return sinkError(err, fmt.Sprintf("Couldn't publish to NATS subject %s", subject))
	}
	n.log.Debug("Published %d %s samples to %s", len(samples), category, subject)
	return nil
}

// Index is a no-op; NATS only carries live samples.
func (n *NATS) Index(context.Context, string, time.Time, stats.Category, []stats.Sample) error {
	return nil
}

// Close drops the connection.
func (n *NATS) Close() error {
	n.conn.Close()
	return nil
}
