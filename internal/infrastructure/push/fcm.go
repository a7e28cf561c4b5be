package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"kitarcycle/internal/config"
	"kitarcycle/internal/notify"
	"kitarcycle/internal/repository"

	"github.com/sony/gobreaker/v2"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Error codes in a per-token result that mean the token will never work again.
var deadTokenErrors = map[string]bool{
	"NotRegistered":       true,
	"InvalidRegistration": true,
	"MismatchSenderId":    true,
}

// FCMGateway pushes through the FCM HTTP API to every active device of a
// recipient. Consecutive provider failures open a circuit breaker so a
// broken provider is not hammered by the dispatcher and the retry job.
type FCMGateway struct {
	endpoint  string
	serverKey string
	client    *http.Client
	tokens    *repository.FcmTokenRepository
	breaker   *gobreaker.CircuitBreaker[*fcmResponse]
}

func NewFCMGateway(db *gorm.DB, cfg *config.FCMConfig, client *http.Client) *FCMGateway {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	breaker := gobreaker.NewCircuitBreaker[*fcmResponse](gobreaker.Settings{
		Name:        "fcm",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(log.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("[FCM] circuit breaker state changed")
		},
	})
	return &FCMGateway{
		endpoint:  cfg.Endpoint,
		serverKey: cfg.ServerKey,
		client:    client,
		tokens:    repository.NewFcmTokenRepository(db),
		breaker:   breaker,
	}
}

type fcmRequest struct {
	RegistrationIDs []string          `json:"registration_ids"`
	Notification    fcmNotification   `json:"notification"`
	Data            map[string]string `json:"data,omitempty"`
	Priority        string            `json:"priority"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmResponse struct {
	MulticastID int64       `json:"multicast_id"`
	Success     int         `json:"success"`
	Failure     int         `json:"failure"`
	Results     []fcmResult `json:"results"`
}

type fcmResult struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

// Send reports Delivered=false with a nil error when the recipient has no
// active devices.
func (g *FCMGateway) Send(ctx context.Context, msg notify.Message) (notify.Delivery, error) {
	rows, err := g.tokens.ListActive(ctx, msg.Recipient)
	if err != nil {
		return notify.Delivery{}, fmt.Errorf("list fcm tokens: %w", err)
	}
	if len(rows) == 0 {
		return notify.Delivery{}, nil
	}
	tokens := make([]string, 0, len(rows))
	for _, row := range rows {
		tokens = append(tokens, row.Token)
	}

	resp, err := g.breaker.Execute(func() (*fcmResponse, error) {
		return g.post(ctx, fcmRequest{
			RegistrationIDs: tokens,
			Notification:    fcmNotification{Title: msg.Title, Body: msg.Body},
			Data:            msg.Data,
			Priority:        "high",
		})
	})
	if err != nil {
		return notify.Delivery{}, err
	}

	var (
		delivery notify.Delivery
		dead     []string
		used     []string
	)
	for i, result := range resp.Results {
		if i >= len(tokens) {
			break
		}
		switch {
		case result.MessageID != "":
			used = append(used, tokens[i])
			if !delivery.Delivered {
				delivery = notify.Delivery{Delivered: true, MessageID: result.MessageID}
			}
		case deadTokenErrors[result.Error]:
			dead = append(dead, tokens[i])
		}
	}

	if len(dead) > 0 {
		if err := g.tokens.Deactivate(ctx, dead); err != nil {
			log.WithError(err).Warn("[FCM] could not deactivate dead tokens")
		} else {
			log.WithFields(log.Fields{"recipient": msg.Recipient.String(), "count": len(dead)}).Info("[FCM] deactivated dead tokens")
		}
	}
	if err := g.tokens.Touch(ctx, used); err != nil {
		log.WithError(err).Warn("[FCM] could not update token last_used_at")
	}
	return delivery, nil
}

func (g *FCMGateway) post(ctx context.Context, body fcmRequest) (*fcmResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+g.serverKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fcm returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out fcmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode fcm response: %w", err)
	}
	return &out, nil
}
