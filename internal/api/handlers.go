// Package api provides the HTTP surface of the settlement engine: platform
// bootstrap, market lifecycle, betting, claims, and read queries.
//
// Authentication is handled upstream; handlers trust the X-User-ID header as
// the verified caller identity and leave role checks to the engine.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oddspool/settlement-engine/internal/asset"
	"github.com/oddspool/settlement-engine/internal/engine"
	"github.com/oddspool/settlement-engine/internal/ledger"
	"github.com/oddspool/settlement-engine/internal/limits"
	"github.com/oddspool/settlement-engine/internal/metrics"
	"github.com/oddspool/settlement-engine/internal/model"
	"github.com/oddspool/settlement-engine/internal/settlement"
	"github.com/oddspool/settlement-engine/internal/store"
)

// Server handles market operations over HTTP.
type Server struct {
	engine *engine.Engine
	wsHub  *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewServer creates an HTTP server around the engine. Pass nil for hub if
// WebSocket broadcasting is not needed.
func NewServer(e *engine.Engine, hub *WSHub) *Server {
	return &Server{engine: e, wsHub: hub}
}

// Router mounts every route the service exposes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"settlement-engine"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.wsHub != nil {
			r.Get("/ws", s.wsHub.HandleWS)
		}

		r.Post("/platform", s.InitializePlatform)
		r.Get("/platform", s.GetPlatform)

		r.Get("/markets", s.ListMarkets)
		r.Post("/markets", s.CreateMarket)
		r.Get("/markets/{marketID}", s.GetMarket)
		r.Get("/markets/{marketID}/outcomes", s.ListOutcomes)
		r.Post("/markets/{marketID}/outcomes", s.RegisterOutcome)
		r.Post("/markets/{marketID}/bets", s.PlaceBet)
		r.Post("/markets/{marketID}/resolve", s.ResolveMarket)
		r.Post("/markets/{marketID}/cancel", s.CancelMarket)
		r.Post("/markets/{marketID}/claims", s.ClaimPayout)

		r.Post("/fees/withdraw", s.WithdrawFees)

		r.Get("/users/{userID}/positions", s.GetUserPositions)
	})

	return r
}

// --- Request/Response types ---

// InitializePlatformRequest is the JSON body for POST /api/v1/platform.
type InitializePlatformRequest struct {
	Treasury   string `json:"treasury"`
	Oracle     string `json:"oracle,omitempty"`
	Asset      string `json:"asset"` // e.g. "USDC-6"
	FeePercent *uint8 `json:"fee_percent,omitempty"`
}

// CreateMarketRequest is the JSON body for POST /api/v1/markets.
type CreateMarketRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	FeePercent  *uint8    `json:"fee_percent,omitempty"`
}

// RegisterOutcomeRequest is the JSON body for POST .../outcomes.
type RegisterOutcomeRequest struct {
	OutcomeID uint8  `json:"outcome_id"`
	Name      string `json:"name"`
}

// PlaceBetRequest is the JSON body for POST .../bets.
type PlaceBetRequest struct {
	OutcomeID uint8  `json:"outcome_id"`
	Amount    uint64 `json:"amount"` // token base units
	Asset     string `json:"asset"`
}

// ResolveMarketRequest is the JSON body for POST .../resolve.
type ResolveMarketRequest struct {
	WinningOutcomeID uint8 `json:"winning_outcome_id"`
}

// ClaimPayoutRequest is the JSON body for POST .../claims.
type ClaimPayoutRequest struct {
	OutcomeID uint8 `json:"outcome_id"`
}

// ClaimPayoutResponse is returned from POST .../claims.
type ClaimPayoutResponse struct {
	MarketID  uint64 `json:"market_id"`
	OutcomeID uint8  `json:"outcome_id"`
	User      string `json:"user"`
	Payout    uint64 `json:"payout"`
}

// WithdrawFeesResponse is returned from POST /api/v1/fees/withdraw.
type WithdrawFeesResponse struct {
	Amount uint64 `json:"amount"`
}

// --- Handlers ---

// InitializePlatform handles POST /api/v1/platform.
func (s *Server) InitializePlatform(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	var req InitializePlatformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Treasury == "" {
		writeError(w, "treasury is required", http.StatusBadRequest)
		return
	}

	cfg, err := s.engine.InitializePlatform(r.Context(), caller, engine.InitializePlatformParams{
		Treasury:   req.Treasury,
		Oracle:     req.Oracle,
		AssetID:    req.Asset,
		FeePercent: req.FeePercent,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, cfg)
}

// GetPlatform handles GET /api/v1/platform.
func (s *Server) GetPlatform(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.engine.Platform(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// CreateMarket handles POST /api/v1/markets.
func (s *Server) CreateMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		writeError(w, "name is required", http.StatusBadRequest)
		return
	}

	market, err := s.engine.CreateMarket(r.Context(), caller, engine.CreateMarketParams{
		Name:        req.Name,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		FeeOverride: req.FeePercent,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	metrics.ActiveMarkets.Inc()
	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{Type: "market_created", MarketID: market.ID})
	}
	writeJSON(w, http.StatusCreated, market)
}

// GetMarket handles GET /api/v1/markets/{marketID}.
func (s *Server) GetMarket(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketParam(w, r)
	if !ok {
		return
	}

	market, err := s.engine.Market(r.Context(), marketID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

// ListMarkets handles GET /api/v1/markets. Optionally filtered by ?status=.
func (s *Server) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.engine.Markets(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := markets[:0]
		for _, m := range markets {
			if m.Status == status {
				filtered = append(filtered, m)
			}
		}
		markets = filtered
	}
	if markets == nil {
		markets = []model.Market{}
	}

	writeJSON(w, http.StatusOK, markets)
}

// RegisterOutcome handles POST /api/v1/markets/{marketID}/outcomes.
func (s *Server) RegisterOutcome(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketParam(w, r)
	if !ok {
		return
	}

	var req RegisterOutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		writeError(w, "name is required", http.StatusBadRequest)
		return
	}

	outcome, err := s.engine.RegisterOutcome(r.Context(), marketID, req.OutcomeID, req.Name)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, outcome)
}

// ListOutcomes handles GET /api/v1/markets/{marketID}/outcomes.
func (s *Server) ListOutcomes(w http.ResponseWriter, r *http.Request) {
	marketID, ok := marketParam(w, r)
	if !ok {
		return
	}

	outcomes, err := s.engine.Outcomes(r.Context(), marketID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomes)
}

// PlaceBet handles POST /api/v1/markets/{marketID}/bets.
func (s *Server) PlaceBet(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	marketID, ok := marketParam(w, r)
	if !ok {
		return
	}

	var req PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	position, err := s.engine.PlaceBet(r.Context(), caller, marketID, req.OutcomeID, req.Amount, req.Asset)
	if err != nil {
		if errors.Is(err, limits.ErrPositionLimitExceeded) || errors.Is(err, limits.ErrMarketLimitExceeded) {
			metrics.StakeLimitRejections.Inc()
		}
		writeEngineError(w, err)
		return
	}

	metrics.BetsTotal.Inc()
	metrics.BetVolume.WithLabelValues(strconv.FormatUint(marketID, 10)).Add(float64(req.Amount))
	if s.wsHub != nil {
		outcomeID := req.OutcomeID
		s.wsHub.Broadcast(WSMessage{
			Type:      "bet_placed",
			MarketID:  marketID,
			OutcomeID: &outcomeID,
			User:      caller,
			Amount:    req.Amount,
		})
	}
	writeJSON(w, http.StatusCreated, position)
}

// ResolveMarket handles POST /api/v1/markets/{marketID}/resolve.
func (s *Server) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	marketID, ok := marketParam(w, r)
	if !ok {
		return
	}

	var req ResolveMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	market, err := s.engine.ResolveMarket(r.Context(), caller, marketID, req.WinningOutcomeID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	metrics.ActiveMarkets.Dec()
	if fee, err := settlement.Fee(market.TotalPool, market.FeePercent); err == nil {
		metrics.FeesCollected.Add(float64(fee))
	}
	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:      "market_resolved",
			MarketID:  marketID,
			OutcomeID: market.Winner,
			TotalPool: market.TotalPool,
		})
	}
	writeJSON(w, http.StatusOK, market)
}

// CancelMarket handles POST /api/v1/markets/{marketID}/cancel.
func (s *Server) CancelMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	marketID, ok := marketParam(w, r)
	if !ok {
		return
	}

	market, err := s.engine.CancelMarket(r.Context(), caller, marketID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	metrics.ActiveMarkets.Dec()
	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{Type: "market_cancelled", MarketID: marketID})
	}
	writeJSON(w, http.StatusOK, market)
}

// ClaimPayout handles POST /api/v1/markets/{marketID}/claims.
func (s *Server) ClaimPayout(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	marketID, ok := marketParam(w, r)
	if !ok {
		return
	}

	var req ClaimPayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	payout, err := s.engine.ClaimPayout(r.Context(), caller, marketID, req.OutcomeID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	metrics.ClaimsTotal.Inc()
	metrics.PayoutVolume.Add(float64(payout))
	if s.wsHub != nil {
		outcomeID := req.OutcomeID
		s.wsHub.Broadcast(WSMessage{
			Type:      "payout_claimed",
			MarketID:  marketID,
			OutcomeID: &outcomeID,
			User:      caller,
			Amount:    payout,
		})
	}
	writeJSON(w, http.StatusOK, ClaimPayoutResponse{
		MarketID:  marketID,
		OutcomeID: req.OutcomeID,
		User:      caller,
		Payout:    payout,
	})
}

// WithdrawFees handles POST /api/v1/fees/withdraw.
func (s *Server) WithdrawFees(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}

	amount, err := s.engine.WithdrawFees(r.Context(), caller)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WithdrawFeesResponse{Amount: amount})
}

// GetUserPositions handles GET /api/v1/users/{userID}/positions.
func (s *Server) GetUserPositions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	positions, err := s.engine.UserPositions(r.Context(), userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if positions == nil {
		positions = []model.UserPosition{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// --- Helpers ---

// callerID extracts the verified caller identity. Writes a 401 and returns
// false when the header is missing.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := r.Header.Get("X-User-ID")
	if caller == "" {
		writeError(w, "X-User-ID header is required", http.StatusUnauthorized)
		return "", false
	}
	return caller, true
}

// marketParam parses the {marketID} route parameter.
func marketParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "marketID"), 10, 64)
	if err != nil {
		writeError(w, "invalid market id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeEngineError maps engine sentinels to HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	writeError(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, engine.ErrOutcomeNotFound):
		return http.StatusNotFound

	case errors.Is(err, engine.ErrUnauthorizedAdmin),
		errors.Is(err, engine.ErrUnauthorizedOracle),
		errors.Is(err, engine.ErrNotPositionOwner):
		return http.StatusForbidden

	case errors.Is(err, engine.ErrInvalidTimeRange),
		errors.Is(err, engine.ErrInvalidStartTime),
		errors.Is(err, engine.ErrInvalidBetAmount),
		errors.Is(err, engine.ErrInvalidMint),
		errors.Is(err, engine.ErrInvalidFeePercent),
		errors.Is(err, asset.ErrInvalidIdentifier),
		errors.Is(err, asset.ErrDecimalsTooLarge),
		errors.Is(err, settlement.ErrInvalidFee),
		errors.Is(err, settlement.ErrMathOverflow):
		return http.StatusBadRequest

	case errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, engine.ErrMarketNotActive),
		errors.Is(err, engine.ErrMarketAlreadyClosed),
		errors.Is(err, engine.ErrMarketAlreadyResolved),
		errors.Is(err, engine.ErrMarketNotResolved),
		errors.Is(err, engine.ErrMarketNotEnded),
		errors.Is(err, engine.ErrDuplicateOutcome),
		errors.Is(err, engine.ErrNotWinner),
		errors.Is(err, engine.ErrAlreadyClaimed),
		errors.Is(err, engine.ErrPlatformPaused),
		errors.Is(err, limits.ErrPositionLimitExceeded),
		errors.Is(err, limits.ErrMarketLimitExceeded),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, settlement.ErrInsufficientLiquidity):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}
