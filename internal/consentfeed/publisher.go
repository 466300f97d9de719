// Package consentfeed carries SIM tracking consent requests to the carrier
// gateway and driver decisions back, over MQTT.
package consentfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/tms-trips/internal/config"
	"github.com/nurpe/tms-trips/internal/model"
)

const qosAtLeastOnce byte = 1

// Connect dials the broker and waits for the session to come up.
func Connect(cfg config.MQTTConfig, log zerolog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetCleanSession(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Msg("mqtt connection lost")
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info().Str("broker", cfg.BrokerURL).Msg("mqtt connected")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return client, nil
}

type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type requestMessage struct {
	ConsentID   uuid.UUID  `json:"consent_id"`
	DriverID    uuid.UUID  `json:"driver_id"`
	MSISDN      string     `json:"msisdn"`
	TripID      *uuid.UUID `json:"trip_id,omitempty"`
	RequestedAt *time.Time `json:"requested_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Publisher implements service.ConsentNotifier.
type Publisher struct {
	client publishClient
	topic  string
	log    zerolog.Logger
}

func NewPublisher(client publishClient, topic string, log zerolog.Logger) *Publisher {
	return &Publisher{client: client, topic: topic, log: log}
}

func (p *Publisher) NotifyConsentRequest(ctx context.Context, consent model.Consent, tripID *uuid.UUID) error {
	payload, err := json.Marshal(requestMessage{
		ConsentID:   consent.ID,
		DriverID:    consent.DriverID,
		MSISDN:      consent.MSISDN,
		TripID:      tripID,
		RequestedAt: consent.RequestedAt,
		ExpiresAt:   consent.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("encode consent request: %w", err)
	}

	token := p.client.Publish(p.topic, qosAtLeastOnce, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish consent request: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish consent request: %w", err)
	}

	p.log.Debug().
		Str("topic", p.topic).
		Str("driver_id", consent.DriverID.String()).
		Msg("consent request published")
	return nil
}
