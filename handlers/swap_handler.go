package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"swap_service/authorization"
	"swap_service/domain"
	"swap_service/service"
)

type SwapHandler struct {
	swaps         *application.SwapService
	compatibility *application.CompatibilityService
	targeting     *application.TargetingService
	sweeper       *application.ExpirationService
	bookings      domain.BookingStore
	cache         domain.CompatibilityCache
	tracer        trace.Tracer
}

func NewSwapHandler(
	swaps *application.SwapService,
	compatibility *application.CompatibilityService,
	targeting *application.TargetingService,
	sweeper *application.ExpirationService,
	bookings domain.BookingStore,
	cache domain.CompatibilityCache,
	tracer trace.Tracer,
) *SwapHandler {
	return &SwapHandler{
		swaps:         swaps,
		compatibility: compatibility,
		targeting:     targeting,
		sweeper:       sweeper,
		bookings:      bookings,
		cache:         cache,
		tracer:        tracer,
	}
}

func (handler *SwapHandler) Init(router *mux.Router) {
	router.HandleFunc("/swaps", handler.CreateSwap).Methods("POST")
	router.HandleFunc("/swaps/{id}", handler.GetSwap).Methods("GET")
	router.HandleFunc("/swaps/{id}/accept", handler.AcceptSwap).Methods("PUT")
	router.HandleFunc("/swaps/{id}/reject", handler.RejectSwap).Methods("PUT")
	router.HandleFunc("/swaps/{id}/cancel", handler.CancelSwap).Methods("PUT")
	router.HandleFunc("/compatibility/{sourceId}/{targetId}", handler.GetCompatibility).Methods("GET")
	router.HandleFunc("/targeting/{bookingId}", handler.GetTargeting).Methods("GET")
	router.HandleFunc("/targeting/{bookingId}/validate", handler.ValidateTargeting).Methods("GET")
	router.HandleFunc("/sweeper/status", handler.SweeperStatus).Methods("GET")
	router.HandleFunc("/sweeper/force", handler.ForceSweep).Methods("POST")
	http.Handle("/", router)
}

func (handler *SwapHandler) CreateSwap(writer http.ResponseWriter, req *http.Request) {
	ctx, span := handler.tracer.Start(req.Context(), "SwapHandler.CreateSwap")
	defer span.End()

	userId, ok := handler.userId(writer, req)
	if !ok {
		return
	}

	request := &domain.CreateSwapRequest{}
	if err := request.FromJSON(req.Body); err != nil {
		span.SetStatus(codes.Error, err.Error())
		http.Error(writer, "Unable to decode json", http.StatusBadRequest)
		return
	}
	if err := request.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}

	proposal, err := handler.swaps.CreateProposal(ctx, userId, request.SourceBookingId, request.TargetBookingId, request.Terms(), request.ExpiresAt)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		writeDomainError(writer, err)
		return
	}

	writer.WriteHeader(http.StatusCreated)
	jsonResponse(proposal, writer)
}

func (handler *SwapHandler) GetSwap(writer http.ResponseWriter, req *http.Request) {
	ctx, span := handler.tracer.Start(req.Context(), "SwapHandler.GetSwap")
	defer span.End()

	id := mux.Vars(req)["id"]
	proposal, err := handler.swaps.GetProposal(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		writeDomainError(writer, err)
		return
	}
	jsonResponse(proposal, writer)
}

func (handler *SwapHandler) AcceptSwap(writer http.ResponseWriter, req *http.Request) {
	ctx, span := handler.tracer.Start(req.Context(), "SwapHandler.AcceptSwap")
	defer span.End()

	userId, ok := handler.userId(writer, req)
	if !ok {
		return
	}

	proposal, err := handler.swaps.AcceptProposal(ctx, userId, mux.Vars(req)["id"])
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		writeDomainError(writer, err)
		return
	}
	jsonResponse(proposal, writer)
}

func (handler *SwapHandler) RejectSwap(writer http.ResponseWriter, req *http.Request) {
	ctx, span := handler.tracer.Start(req.Context(), "SwapHandler.RejectSwap")
	defer span.End()

	userId, ok := handler.userId(writer, req)
	if !ok {
		return
	}

	proposal, err := handler.swaps.RejectProposal(ctx, userId, mux.Vars(req)["id"])
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		writeDomainError(writer, err)
		return
	}
	jsonResponse(proposal, writer)
}

func (handler *SwapHandler) CancelSwap(writer http.ResponseWriter, req *http.Request) {
	ctx, span := handler.tracer.Start(req.Context(), "SwapHandler.CancelSwap")
	defer span.End()

	userId, ok := handler.userId(writer, req)
	if !ok {
		return
	}

	proposal, err := handler.swaps.CancelProposal(ctx, userId, mux.Vars(req)["id"])
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		writeDomainError(writer, err)
		return
	}
	jsonResponse(proposal, writer)
}

// GetCompatibility serves the browse-time score, cached for a short TTL so
// listing pages do not recompute the analysis on every view.
func (handler *SwapHandler) GetCompatibility(writer http.ResponseWriter, req *http.Request) {
	ctx, span := handler.tracer.Start(req.Context(), "SwapHandler.GetCompatibility")
	defer span.End()

	vars := mux.Vars(req)
	sourceId, targetId := vars["sourceId"], vars["targetId"]
	cacheKey := fmt.Sprintf("compatibility:%s:%s", sourceId, targetId)

	if cached, err := handler.cache.GetAnalysis(ctx, cacheKey); err == nil && cached != nil {
		jsonResponse(cached, writer)
		return
	}

	source, err := handler.bookings.GetBooking(ctx, sourceId)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		writeDomainError(writer, err)
		return
	}
	target, err := handler.bookings.GetBooking(ctx, targetId)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		writeDomainError(writer, err)
		return
	}

	analysis := handler.compatibility.Analyze(ctx, source, target, nil)
	if err := handler.cache.PostAnalysis(ctx, cacheKey, analysis); err != nil {
		log.Printf("failed to cache compatibility analysis: %s", err)
	}
	jsonResponse(analysis, writer)
}

func (handler *SwapHandler) GetTargeting(writer http.ResponseWriter, req *http.Request) {
	ctx, span := handler.tracer.Start(req.Context(), "SwapHandler.GetTargeting")
	defer span.End()

	view, err := handler.targeting.GetBookingTargeting(ctx, mux.Vars(req)["bookingId"])
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		writeDomainError(writer, err)
		return
	}
	jsonResponse(view, writer)
}

func (handler *SwapHandler) ValidateTargeting(writer http.ResponseWriter, req *http.Request) {
	ctx, span := handler.tracer.Start(req.Context(), "SwapHandler.ValidateTargeting")
	defer span.End()

	issues, err := handler.targeting.ValidateTargeting(ctx, mux.Vars(req)["bookingId"])
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		writeDomainError(writer, err)
		return
	}
	jsonResponse(issues, writer)
}

func (handler *SwapHandler) SweeperStatus(writer http.ResponseWriter, req *http.Request) {
	_, span := handler.tracer.Start(req.Context(), "SwapHandler.SweeperStatus")
	defer span.End()

	jsonResponse(handler.sweeper.Status(), writer)
}

func (handler *SwapHandler) ForceSweep(writer http.ResponseWriter, req *http.Request) {
	ctx, span := handler.tracer.Start(req.Context(), "SwapHandler.ForceSweep")
	defer span.End()

	processed, err := handler.sweeper.ForceCheck(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		http.Error(writer, "Error running expiration check", http.StatusInternalServerError)
		return
	}
	jsonResponse(map[string]int{"processed": processed}, writer)
}

// userId resolves the caller identity from the bearer token claims.
func (handler *SwapHandler) userId(writer http.ResponseWriter, req *http.Request) (string, bool) {
	bearer := req.Header.Get("Authorization")
	if bearer == "" {
		http.Error(writer, "Unauthorized", http.StatusUnauthorized)
		return "", false
	}

	bearerToken := strings.Split(bearer, "Bearer ")
	if len(bearerToken) != 2 {
		http.Error(writer, "Unauthorized", http.StatusUnauthorized)
		return "", false
	}

	token := authorization.GetToken(bearerToken[1])
	if token == nil {
		http.Error(writer, "Unauthorized", http.StatusUnauthorized)
		return "", false
	}

	claims := authorization.GetMapClaims(token.Bytes())
	userId := claims["user_id"]
	if userId == "" {
		http.Error(writer, "Unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return userId, true
}

// writeDomainError maps sentinel errors onto HTTP statuses so callers can
// tell a bad request from a lost race from a broken downstream.
func writeDomainError(writer http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBookingNotFound), errors.Is(err, domain.ErrSwapNotFound):
		http.Error(writer, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrNotSwapOwner), errors.Is(err, domain.ErrNotTargetOwner), errors.Is(err, domain.ErrNotProposer):
		http.Error(writer, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrExpiryNotInFuture), errors.Is(err, domain.ErrUnknownTermsKind),
		errors.Is(err, domain.ErrInvalidCashAmount), errors.Is(err, domain.ErrNoTargetSelected):
		http.Error(writer, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrSwapNotOpen), errors.Is(err, domain.ErrTargetNotOpen),
		errors.Is(err, domain.ErrOwnSwapProposal), errors.Is(err, domain.ErrProposalExists),
		errors.Is(err, domain.ErrBookingNotAvailable), errors.Is(err, domain.ErrSwapNotPending),
		errors.Is(err, domain.ErrSwapExpired):
		http.Error(writer, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrNotarizationFailed), errors.Is(err, domain.ErrTransferFailed):
		http.Error(writer, err.Error(), http.StatusBadGateway)
	default:
		http.Error(writer, err.Error(), http.StatusInternalServerError)
	}
}

func jsonResponse(object interface{}, writer http.ResponseWriter) {
	resp, err := json.Marshal(object)
	if err != nil {
		http.Error(writer, err.Error(), http.StatusInternalServerError)
		return
	}
	writer.Write(resp)
}
