// Package telemetry publishes matchmaking events to an MQTT broker so
// external fleet tooling can observe the server without polling it.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/slonopotamus/Atto/internal/config"
	"github.com/slonopotamus/Atto/internal/events"
	"github.com/slonopotamus/Atto/internal/util"
)

// Topic suffixes, published under the configured prefix.
const (
	TopicStatus      = "status"
	TopicMatch       = "match"
	TopicSession     = "session"
	TopicConnection  = "connection"
	TopicMatchmaking = "matchmaking"
)

// MQTTHandler manages the MQTT connection and republishes bus events.
type MQTTHandler struct {
	cfg      *config.Config
	eventBus *events.EventBus
	client   mqtt.Client

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTHandler creates the telemetry publisher. MQTT must be enabled
// in the configuration.
func NewMQTTHandler(cfg *config.Config, eventBus *events.EventBus) (*MQTTHandler, error) {
	mqttCfg := cfg.MQTT

	if !mqttCfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	sysInfo := util.GetSystemInfo()
	metadata := map[string]interface{}{
		"hostname":  sysInfo.Hostname,
		"platform":  sysInfo.Platform,
		"cpu_model": sysInfo.CPUModel,
		"cpu_cores": sysInfo.CPUCores,
		"memory_mb": sysInfo.TotalMemory,
	}

	handler := &MQTTHandler{
		cfg:      cfg,
		eventBus: eventBus,
		metadata: metadata,
	}

	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if mqttCfg.UseTLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, mqttCfg.BrokerURL, mqttCfg.Port))

	if mqttCfg.ClientID != "" {
		opts.SetClientID(mqttCfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("atto-%s", sysInfo.Hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false)

	if mqttCfg.UseTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}

		// mTLS: load client certificate
		if mqttCfg.CertFile != "" && mqttCfg.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(mqttCfg.CertFile, mqttCfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}

		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Msg("MQTT connected")
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	handler.client = mqtt.NewClient(opts)

	return handler, nil
}

// Start connects to the broker, subscribes to bus events, and blocks
// until the context is canceled.
func (h *MQTTHandler) Start(ctx context.Context) error {
	log.Info().
		Str("broker", h.cfg.MQTT.BrokerURL).
		Int("port", h.cfg.MQTT.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.subscribeEvents()

	<-ctx.Done()

	h.PublishShutdown()
	h.client.Disconnect(5000)
	log.Info().Msg("MQTT disconnected")

	return nil
}

func (h *MQTTHandler) subscribeEvents() {
	h.eventBus.Subscribe(events.EventMatchCommitted, "mqtt.matchCommitted", h.onMatchCommitted)
	h.eventBus.Subscribe(events.EventQueueExpired, "mqtt.queueExpired", h.onQueueExpired)
	h.eventBus.Subscribe(events.EventSessionCreated, "mqtt.sessionCreated", h.onSessionEvent("created"))
	h.eventBus.Subscribe(events.EventSessionDestroyed, "mqtt.sessionDestroyed", h.onSessionEvent("destroyed"))
	h.eventBus.Subscribe(events.EventConnectionOpened, "mqtt.connectionOpened", h.onConnectionEvent("opened"))
	h.eventBus.Subscribe(events.EventConnectionClosed, "mqtt.connectionClosed", h.onConnectionEvent("closed"))
}

func (h *MQTTHandler) topic(suffix string) string {
	return h.cfg.MQTT.TopicPrefix + "/" + suffix
}

// publish sends a JSON message to an MQTT topic.
func (h *MQTTHandler) publish(topic string, payload interface{}) {
	if !h.client.IsConnected() {
		return
	}

	msg := h.buildMessage(payload)

	data, err := json.Marshal(msg)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := h.client.Publish(topic, 1, false, data) // QoS 1
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the event payload.
func (h *MQTTHandler) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{})

	for k, v := range h.metadata {
		msg[k] = v
	}

	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	return msg
}

func (h *MQTTHandler) onMatchCommitted(ctx context.Context, event events.Event) error {
	h.publish(h.topic(TopicMatch), event.Payload)
	return nil
}

func (h *MQTTHandler) onQueueExpired(ctx context.Context, event events.Event) error {
	h.publish(h.topic(TopicMatchmaking), map[string]interface{}{
		"event":   "expired",
		"payload": event.Payload,
	})
	return nil
}

func (h *MQTTHandler) onSessionEvent(name string) events.HandlerFunc {
	return func(ctx context.Context, event events.Event) error {
		h.publish(h.topic(TopicSession), map[string]interface{}{
			"event":   name,
			"payload": event.Payload,
		})
		return nil
	}
}

func (h *MQTTHandler) onConnectionEvent(name string) events.HandlerFunc {
	return func(ctx context.Context, event events.Event) error {
		h.publish(h.topic(TopicConnection), map[string]interface{}{
			"event":   name,
			"payload": event.Payload,
		})
		return nil
	}
}

// PublishShutdown announces that the server is going away.
func (h *MQTTHandler) PublishShutdown() {
	h.publish(h.topic(TopicStatus), map[string]interface{}{
		"event":     "shutdown",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
