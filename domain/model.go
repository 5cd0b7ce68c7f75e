package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BookingStatus string

const (
	BookingAvailable BookingStatus = "available"
	BookingLocked    BookingStatus = "locked"
	BookingSwapped   BookingStatus = "swapped"
)

type Booking struct {
	ID                primitive.ObjectID `bson:"_id" json:"id"`
	OwnerId           string             `bson:"ownerId" json:"ownerId"`
	Location          string             `bson:"location,omitempty" json:"location"`
	StartDate         time.Time          `bson:"startDate,omitempty" json:"startDate"`
	EndDate           time.Time          `bson:"endDate,omitempty" json:"endDate"`
	TotalValue        float64            `bson:"totalValue,omitempty" json:"totalValue"`
	AccommodationType string             `bson:"accommodationType,omitempty" json:"accommodationType"`
	Guests            int                `bson:"guests,omitempty" json:"guests"`
	Status            BookingStatus      `bson:"status" json:"status"`
	// LockedBy holds the id of the proposal owning the advisory lock while
	// the booking is in the locked status.
	LockedBy string `bson:"lockedBy,omitempty" json:"lockedBy,omitempty"`
}

type SwapStatus string

const (
	SwapPending   SwapStatus = "pending"
	SwapAccepted  SwapStatus = "accepted"
	SwapRejected  SwapStatus = "rejected"
	SwapCancelled SwapStatus = "cancelled"
	SwapExpired   SwapStatus = "expired"
	SwapCompleted SwapStatus = "completed"
)

func (s SwapStatus) Terminal() bool {
	switch s {
	case SwapRejected, SwapCancelled, SwapExpired, SwapCompleted:
		return true
	}
	return false
}

type TermsKind string

const (
	BookingExchangeTerms TermsKind = "booking_exchange"
	CashOfferTerms       TermsKind = "cash_offer"
)

// SwapTerms is a tagged variant: Kind selects between a plain booking
// exchange and an exchange with a cash top-up. Consumers must switch on
// Kind exhaustively and treat unknown kinds as an error.
type SwapTerms struct {
	Kind         TermsKind `bson:"kind" json:"kind"`
	Conditions   string    `bson:"conditions,omitempty" json:"conditions,omitempty"`
	CashAmount   float64   `bson:"cashAmount,omitempty" json:"cashAmount,omitempty"`
	CashCurrency string    `bson:"cashCurrency,omitempty" json:"cashCurrency,omitempty"`
}

type Transition string

const (
	TransitionCreated   Transition = "created"
	TransitionAccepted  Transition = "accepted"
	TransitionRejected  Transition = "rejected"
	TransitionCancelled Transition = "cancelled"
	TransitionExpired   Transition = "expired"
)

// SwapProposal is the unit of negotiation between two bookings. The owner
// side is never stored on the row: it is derived from the target booking's
// current owner at read time, so a booking ownership change can not leave a
// stale copy behind.
type SwapProposal struct {
	ID              primitive.ObjectID `bson:"_id" json:"id"`
	SourceBookingId string             `bson:"sourceBookingId" json:"sourceBookingId"`
	// TargetBookingId stays empty for auction-style listings until a target
	// is chosen.
	TargetBookingId        string                `bson:"targetBookingId,omitempty" json:"targetBookingId,omitempty"`
	ProposerId             string                `bson:"proposerId" json:"proposerId"`
	Status                 SwapStatus            `bson:"status" json:"status"`
	Terms                  SwapTerms             `bson:"terms" json:"terms"`
	ExpiresAt              time.Time             `bson:"expiresAt" json:"expiresAt"`
	NotarizationRefs       map[Transition]string `bson:"notarizationRefs,omitempty" json:"notarizationRefs,omitempty"`
	TransferConfirmationId string                `bson:"transferConfirmationId,omitempty" json:"transferConfirmationId,omitempty"`
	ProposedAt             time.Time             `bson:"proposedAt" json:"proposedAt"`
	RespondedAt            *time.Time            `bson:"respondedAt,omitempty" json:"respondedAt,omitempty"`
}

type TargetingStatus string

const (
	TargetingActive    TargetingStatus = "active"
	TargetingAccepted  TargetingStatus = "accepted"
	TargetingRejected  TargetingStatus = "rejected"
	TargetingCancelled TargetingStatus = "cancelled"
)

// TargetingLink is the lightweight directed record of one swap proposing
// against another, kept independent of the full proposal row so browse
// listings can answer "is this booking spoken for" cheaply.
type TargetingLink struct {
	ID           string          `json:"id"`
	SourceSwapId string          `json:"sourceSwapId"`
	TargetSwapId string          `json:"targetSwapId"`
	Status       TargetingStatus `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// BookingTargeting is the per-booking view over targeting links: everyone
// targeting this booking, plus this booking's single outbound proposal.
type BookingTargeting struct {
	BookingId       string           `json:"bookingId"`
	IncomingTargets []*TargetingLink `json:"incomingTargets"`
	OutgoingTarget  *TargetingLink   `json:"outgoingTarget,omitempty"`
	IncomingCount   int              `json:"incomingCount"`
	OutgoingCount   int              `json:"outgoingCount"`
}

type IssueSeverity string

const (
	SeverityLow    IssueSeverity = "low"
	SeverityMedium IssueSeverity = "medium"
	SeverityHigh   IssueSeverity = "high"
)

type ConsistencyIssue struct {
	Severity IssueSeverity `json:"severity"`
	Message  string        `json:"message"`
}

type FactorStatus string

const (
	FactorExcellent FactorStatus = "excellent"
	FactorGood      FactorStatus = "good"
	FactorFair      FactorStatus = "fair"
	FactorPoor      FactorStatus = "poor"
)

type CompatibilityFactor struct {
	Score  float64      `json:"score"`
	Weight float64      `json:"weight"`
	Status FactorStatus `json:"status"`
	Detail string       `json:"detail"`
}

// CompatibilityAnalysis is an ephemeral value object, recomputed on demand
// and never persisted outside the browse cache.
type CompatibilityAnalysis struct {
	OverallScore    int                 `json:"overallScore"`
	Location        CompatibilityFactor `json:"location"`
	Date            CompatibilityFactor `json:"date"`
	Value           CompatibilityFactor `json:"value"`
	Accommodation   CompatibilityFactor `json:"accommodation"`
	Guests          CompatibilityFactor `json:"guests"`
	Recommendations []string            `json:"recommendations"`
	PotentialIssues []string            `json:"potentialIssues"`
}

type CompatibilityWeights struct {
	Location      float64 `json:"location"`
	Date          float64 `json:"date"`
	Value         float64 `json:"value"`
	Accommodation float64 `json:"accommodation"`
	Guests        float64 `json:"guests"`
}

// DefaultCompatibilityWeights sum to 1.0. Caller-supplied weights are used
// verbatim without renormalization; a set not summing to 1.0 skews the
// overall score accordingly.
func DefaultCompatibilityWeights() CompatibilityWeights {
	return CompatibilityWeights{
		Location:      0.25,
		Date:          0.20,
		Value:         0.30,
		Accommodation: 0.15,
		Guests:        0.10,
	}
}

// ValidationResult carries the eligibility verdict: hard failures in Errors,
// soft findings in Warnings, and the outcome of every individual check.
type ValidationResult struct {
	IsValid  bool            `json:"isValid"`
	Errors   []string        `json:"errors"`
	Warnings []string        `json:"warnings"`
	Checks   map[string]bool `json:"checks"`
}

type SweeperStatus struct {
	Running              bool   `json:"running"`
	IntervalSeconds      int    `json:"intervalSeconds"`
	TotalChecksPerformed int64  `json:"totalChecksPerformed"`
	TotalSwapsProcessed  int64  `json:"totalSwapsProcessed"`
	LastError            string `json:"lastError,omitempty"`
}

type NotarizationRecord struct {
	RecordId   string     `json:"recordId"`
	SwapId     string     `json:"swapId"`
	Transition Transition `json:"transition"`
	ActorId    string     `json:"actorId,omitempty"`
	OccurredAt time.Time  `json:"occurredAt"`
}

type NotarizationReceipt struct {
	ConfirmationId string    `json:"confirmationId"`
	Timestamp      time.Time `json:"timestamp"`
}
