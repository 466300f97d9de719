package consentfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/tms-trips/internal/model"
	"github.com/nurpe/tms-trips/internal/service"
)

var errEmptyPayload = errors.New("empty payload")

// Resolver is the part of the consent service the feed drives.
type Resolver interface {
	Resolve(ctx context.Context, principal model.Principal, driverID uuid.UUID, decision string) (*model.Consent, error)
}

type decisionMessage struct {
	DriverID string `json:"driver_id"`
	Decision string `json:"decision"`
}

// Subscriber applies decisions published on consent/decisions/<driver_id>.
// The driver id in the payload wins over the topic segment.
type Subscriber struct {
	resolver  Resolver
	principal model.Principal
	timeout   time.Duration
	log       zerolog.Logger
}

func NewSubscriber(resolver Resolver, timeout time.Duration, log zerolog.Logger) *Subscriber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Subscriber{
		resolver:  resolver,
		principal: model.Principal{Role: model.RoleIntegration},
		timeout:   timeout,
		log:       log,
	}
}

func (s *Subscriber) Subscribe(client mqtt.Client, topic string) error {
	token := client.Subscribe(topic, qosAtLeastOnce, s.HandleMessage)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt subscribe %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	s.log.Info().Str("topic", topic).Msg("listening for consent decisions")
	return nil
}

// HandleMessage is the paho callback. Malformed and illegal decisions are
// logged and dropped.
func (s *Subscriber) HandleMessage(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.handle(ctx, msg.Topic(), msg.Payload())
	switch {
	case err == nil:
	case errors.Is(err, service.ErrTransient):
		s.log.Error().Err(err).Str("topic", msg.Topic()).Msg("consent decision not applied, store unavailable")
	default:
		s.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("consent decision rejected")
	}
}

func (s *Subscriber) handle(ctx context.Context, topic string, payload []byte) error {
	if len(payload) == 0 {
		return errEmptyPayload
	}

	var msg decisionMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode decision: %w", err)
	}

	raw := strings.TrimSpace(msg.DriverID)
	if raw == "" {
		raw = topic[strings.LastIndex(topic, "/")+1:]
	}
	driverID, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid driver id %q", raw)
	}

	consent, err := s.resolver.Resolve(ctx, s.principal, driverID, msg.Decision)
	if err != nil {
		return err
	}

	s.log.Info().
		Str("driver_id", driverID.String()).
		Str("status", string(consent.Status)).
		Msg("consent decision applied")
	return nil
}
