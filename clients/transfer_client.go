package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"swap_service/domain"
)

// TransferClient calls the ownership transfer service on acceptance.
// Transfer is not retried: the caller treats any failure as a signal to
// roll the acceptance back, and a blind retry could double-move funds on
// a cash offer.
type TransferClient struct {
	endpoint string
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
	logger   *logrus.Logger
}

func NewTransferClient(endpoint string, logger *logrus.Logger) *TransferClient {
	return &TransferClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		cb:       CircuitBreaker("transfer"),
		logger:   logger,
	}
}

type transferRequest struct {
	SwapId          string  `json:"swapId"`
	SourceBookingId string  `json:"sourceBookingId"`
	TargetBookingId string  `json:"targetBookingId"`
	CashAmount      float64 `json:"cashAmount,omitempty"`
	CashCurrency    string  `json:"cashCurrency,omitempty"`
}

type transferResponse struct {
	ConfirmationId string `json:"confirmationId"`
}

func (tc *TransferClient) Transfer(ctx context.Context, proposal *domain.SwapProposal) (string, error) {
	payload, err := json.Marshal(transferRequest{
		SwapId:          proposal.ID.Hex(),
		SourceBookingId: proposal.SourceBookingId,
		TargetBookingId: proposal.TargetBookingId,
		CashAmount:      proposal.Terms.CashAmount,
		CashCurrency:    proposal.Terms.CashCurrency,
	})
	if err != nil {
		return "", err
	}

	result, breakerErr := tc.cb.Execute(func() (interface{}, error) {
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, tc.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		request.Header.Set("Content-Type", "application/json")
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(request.Header))

		response, err := tc.client.Do(request)
		if err != nil {
			return nil, fmt.Errorf("error calling transfer service: %v", err)
		}
		defer response.Body.Close()

		if response.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("transfer service returned status code: %d", response.StatusCode)
		}

		body, err := io.ReadAll(response.Body)
		if err != nil {
			return nil, fmt.Errorf("error reading transfer response: %v", err)
		}

		var confirmation transferResponse
		if err := json.Unmarshal(body, &confirmation); err != nil {
			return nil, fmt.Errorf("error unmarshaling transfer confirmation JSON: %v", err)
		}
		return confirmation.ConfirmationId, nil
	})
	if breakerErr != nil {
		tc.logger.Errorf("transfer for proposal %s failed: %s", proposal.ID.Hex(), breakerErr)
		return "", breakerErr
	}

	return result.(string), nil
}
