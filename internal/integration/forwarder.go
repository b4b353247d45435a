package integration

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/drone-bridge/drone-bridge-server/internal/config"
)

// ForwarderService relays bridge events from NATS to external systems:
// an HTTP webhook endpoint and an MQTT broker, per configuration.
type ForwarderService struct {
	nc  *nats.Conn
	cfg config.IntegrationConfig

	httpClient *http.Client
	mqttClient mqtt.Client
}

// NewForwarderService creates a forwarder service
func NewForwarderService(nc *nats.Conn, cfg config.IntegrationConfig) *ForwarderService {
	timeout := cfg.HTTP.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &ForwarderService{
		nc:  nc,
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Start subscribes to bridge events and blocks until the context is done
func (s *ForwarderService) Start(ctx context.Context) error {
	if !s.cfg.HTTP.Enabled && !s.cfg.MQTT.Enabled {
		log.Info().Msg("No integrations enabled, forwarder idle")
		<-ctx.Done()
		return nil
	}

	if s.cfg.MQTT.Enabled {
		if err := s.connectMQTT(); err != nil {
			log.Error().Err(err).Msg("Failed to connect MQTT integration")
		}
	}

	sub, err := s.nc.Subscribe("vehicle.>", s.handleEvent)
	if err != nil {
		return fmt.Errorf("subscribe to vehicle events: %w", err)
	}

	log.Info().
		Bool("http", s.cfg.HTTP.Enabled).
		Bool("mqtt", s.cfg.MQTT.Enabled).
		Msg("Integration forwarder service started")

	<-ctx.Done()

	sub.Unsubscribe()
	if s.mqttClient != nil && s.mqttClient.IsConnected() {
		s.mqttClient.Disconnect(250)
	}

	return nil
}

// handleEvent forwards one bridge event to the enabled outputs
func (s *ForwarderService) handleEvent(msg *nats.Msg) {
	if s.cfg.HTTP.Enabled {
		if err := s.forwardHTTP(msg.Subject, msg.Data); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject).Msg("HTTP forward failed")
		}
	}

	if s.cfg.MQTT.Enabled {
		if err := s.forwardMQTT(msg.Subject, msg.Data); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject).Msg("MQTT forward failed")
		}
	}
}

// forwardHTTP posts the event payload to the webhook endpoint
func (s *ForwarderService) forwardHTTP(subject string, payload []byte) error {
	req, err := http.NewRequest(http.MethodPost, s.cfg.HTTP.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Subject", subject)
	for k, v := range s.cfg.HTTP.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// forwardMQTT publishes the event payload on the configured topic. The
// topic pattern may contain {subject}, replaced with the NATS subject
// rewritten to MQTT path separators.
func (s *ForwarderService) forwardMQTT(subject string, payload []byte) error {
	if s.mqttClient == nil || !s.mqttClient.IsConnected() {
		if err := s.connectMQTT(); err != nil {
			return err
		}
	}

	topic := s.cfg.MQTT.TopicPattern
	if topic == "" {
		topic = "bridge/{subject}"
	}
	topic = strings.ReplaceAll(topic, "{subject}", strings.ReplaceAll(subject, ".", "/"))

	token := s.mqttClient.Publish(topic, s.cfg.MQTT.QoS, false, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

// connectMQTT establishes the broker connection
func (s *ForwarderService) connectMQTT() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.MQTT.Broker)
	opts.SetClientID(fmt.Sprintf("drone-bridge-forwarder-%d", time.Now().Unix()))
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)

	if s.cfg.MQTT.Username != "" {
		opts.SetUsername(s.cfg.MQTT.Username)
		opts.SetPassword(s.cfg.MQTT.Password)
	}

	if s.cfg.MQTT.TLSEnabled {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT integration connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return fmt.Errorf("connect to %s timed out", s.cfg.MQTT.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to %s: %w", s.cfg.MQTT.Broker, err)
	}

	s.mqttClient = client
	log.Info().Str("broker", s.cfg.MQTT.Broker).Msg("MQTT integration connected")
	return nil
}
