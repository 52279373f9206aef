// Package mqtt publishes retained per-sonde snapshots to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/couchcryptid/sonde-etl/internal/domain"
)

const (
	qosAtLeastOnce = 1
	publishTimeout = 5 * time.Second
	connectPoll    = 200 * time.Millisecond
)

// ErrNotConnected is returned by Publish while the broker link is down.
var ErrNotConnected = errors.New("mqtt client not connected")

// Config holds broker connection settings.
type Config struct {
	Broker      string
	Port        int
	ClientID    string
	TopicPrefix string
}

// client is the subset of paho.Client the publisher drives.
type client interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Publisher sends one retained message per sonde to <prefix>/<id>.
// It implements pipeline.Publisher.
type Publisher struct {
	client client
	prefix string
	logger *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewPublisher configures a paho client with automatic reconnects. Call
// Connect before the first Publish.
func NewPublisher(cfg Config, logger *slog.Logger) *Publisher {
	p := &Publisher{
		prefix: cfg.TopicPrefix,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ paho.Client) {
		logger.Info("mqtt connected", "broker", cfg.Broker, "port", cfg.Port)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = paho.NewClient(opts)
	return p
}

// Name identifies the sink in logs and metrics.
func (p *Publisher) Name() string { return "mqtt" }

// Connect waits for the initial broker connection. It respects ctx and Disconnect.
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return errors.New("mqtt publisher stopped")
	default:
	}
	if p.client.IsConnected() {
		return nil
	}

	token := p.client.Connect()
	for {
		if token.WaitTimeout(connectPoll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return errors.New("mqtt publisher stopped")
		default:
		}
	}
}

// Publish sends every snapshot without its history buffer. The first
// failure aborts the batch.
func (p *Publisher) Publish(ctx context.Context, snapshots []domain.SondeState) error {
	if len(snapshots) == 0 {
		return nil
	}
	if !p.client.IsConnected() {
		return ErrNotConnected
	}
	for i := range snapshots {
		if err := ctx.Err(); err != nil {
			return err
		}
		topic := Topic(p.prefix, snapshots[i].ID)
		data, err := encodeSnapshot(snapshots[i])
		if err != nil {
			return err
		}
		token := p.client.Publish(topic, qosAtLeastOnce, true, data)
		if !token.WaitTimeout(publishTimeout) {
			return fmt.Errorf("publish timeout for topic %s", topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
	}
	p.logger.Debug("published snapshots to mqtt", "count", len(snapshots))
	return nil
}

// Disconnect stops any pending Connect and closes the broker link.
func (p *Publisher) Disconnect() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.client.Disconnect(250)
	})
}

// Topic returns the retained topic for a sonde.
func Topic(prefix, id string) string {
	if prefix == "" {
		return id
	}
	return prefix + "/" + id
}

func encodeSnapshot(s domain.SondeState) ([]byte, error) {
	compact := s.Clone(false)
	data, err := json.Marshal(compact)
	if err != nil {
		return nil, fmt.Errorf("marshal sonde %s: %w", s.ID, err)
	}
	return data, nil
}
