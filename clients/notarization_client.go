package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"swap_service/domain"
)

const (
	defaultMaxAttempts    = 3
	defaultAttemptTimeout = 5 * time.Second
	baseRetryDelay        = 500 * time.Millisecond
)

// NotarizationClient posts lifecycle transition records to the external
// ledger service. It owns the retry budget: transient failures are retried
// with exponential backoff and a returned error means the budget is spent.
type NotarizationClient struct {
	endpoint    string
	client      *http.Client
	cb          *gobreaker.CircuitBreaker
	maxAttempts int
	logger      *logrus.Logger
}

func NewNotarizationClient(endpoint string, maxAttempts int, logger *logrus.Logger) *NotarizationClient {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &NotarizationClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: defaultAttemptTimeout},
		cb:          CircuitBreaker("notarization"),
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Submit assigns the idempotency key once, before the first attempt, so a
// retried request after a lost response cannot double-record the
// transition on the ledger.
func (nc *NotarizationClient) Submit(ctx context.Context, record *domain.NotarizationRecord) (*domain.NotarizationReceipt, error) {
	if record.RecordId == "" {
		record.RecordId = uuid.NewString()
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= nc.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := baseRetryDelay * time.Duration(1<<uint(attempt-2))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		receipt, err := nc.submitOnce(ctx, payload)
		if err == nil {
			return receipt, nil
		}
		lastErr = err
		nc.logger.Warnf("notarization attempt %d/%d for record %s failed: %s", attempt, nc.maxAttempts, record.RecordId, err)
	}

	return nil, fmt.Errorf("notarization failed after %d attempts: %w", nc.maxAttempts, lastErr)
}

func (nc *NotarizationClient) submitOnce(ctx context.Context, payload []byte) (*domain.NotarizationReceipt, error) {
	result, breakerErr := nc.cb.Execute(func() (interface{}, error) {
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, nc.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		request.Header.Set("Content-Type", "application/json")
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(request.Header))

		response, err := nc.client.Do(request)
		if err != nil {
			return nil, fmt.Errorf("error submitting notarization record: %v", err)
		}
		defer response.Body.Close()

		if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusCreated {
			return nil, fmt.Errorf("notarization service returned status code: %d", response.StatusCode)
		}

		body, err := io.ReadAll(response.Body)
		if err != nil {
			return nil, fmt.Errorf("error reading notarization response: %v", err)
		}

		var receipt domain.NotarizationReceipt
		if err := json.Unmarshal(body, &receipt); err != nil {
			return nil, fmt.Errorf("error unmarshaling notarization receipt JSON: %v", err)
		}
		return &receipt, nil
	})
	if breakerErr != nil {
		return nil, breakerErr
	}

	return result.(*domain.NotarizationReceipt), nil
}
