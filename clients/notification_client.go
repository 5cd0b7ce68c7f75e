package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// NotificationClient delivers lifecycle notifications to the notification
// service. Callers treat delivery as best effort.
type NotificationClient struct {
	endpoint string
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
	logger   *logrus.Logger
}

func NewNotificationClient(endpoint string, logger *logrus.Logger) *NotificationClient {
	return &NotificationClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
		cb:       CircuitBreaker("notification"),
		logger:   logger,
	}
}

func (nc *NotificationClient) Notify(ctx context.Context, byGuestId, forHostId, description string) error {
	requestBody := map[string]interface{}{
		"ByGuestId":   byGuestId,
		"ForHostId":   forHostId,
		"Description": description,
	}

	payload, err := json.Marshal(requestBody)
	if err != nil {
		return err
	}

	_, breakerErr := nc.cb.Execute(func() (interface{}, error) {
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, nc.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		request.Header.Set("Content-Type", "application/json")
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(request.Header))

		response, err := nc.client.Do(request)
		if err != nil {
			return nil, fmt.Errorf("error calling notification service: %v", err)
		}
		defer response.Body.Close()

		if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusCreated {
			return nil, fmt.Errorf("notification service returned status code: %d", response.StatusCode)
		}
		return nil, nil
	})
	return breakerErr
}
