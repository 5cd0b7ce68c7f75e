package domain

import (
	"encoding/json"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
)

// CreateSwapRequest is the wire shape of a new proposal. Terms fields are
// flattened so clients do not need to build a nested object for the common
// booking exchange case.
type CreateSwapRequest struct {
	SourceBookingId string    `json:"sourceBookingId" validate:"required"`
	TargetBookingId string    `json:"targetBookingId" validate:"required"`
	TermsKind       TermsKind `json:"termsKind" validate:"required"`
	Conditions      string    `json:"conditions,omitempty"`
	CashAmount      float64   `json:"cashAmount,omitempty"`
	CashCurrency    string    `json:"cashCurrency,omitempty"`
	ExpiresAt       time.Time `json:"expiresAt" validate:"required"`
}

func (request *CreateSwapRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(request)
}

func (request *CreateSwapRequest) FromJSON(reader io.Reader) error {
	d := json.NewDecoder(reader)
	return d.Decode(request)
}

func (request *CreateSwapRequest) Terms() SwapTerms {
	return SwapTerms{
		Kind:         request.TermsKind,
		Conditions:   request.Conditions,
		CashAmount:   request.CashAmount,
		CashCurrency: request.CashCurrency,
	}
}
