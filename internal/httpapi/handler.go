// Package httpapi exposes the auction services over HTTP and upgrades
// subscribers onto the websocket hub. Authentication is an external
// collaborator: the authenticated bidder id arrives in the X-User-ID header.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/bidwire/auction/internal/app"
	"github.com/bidwire/auction/internal/bidding"
	"github.com/bidwire/auction/internal/domain/auction"
	"github.com/bidwire/auction/internal/domain/user"
	"github.com/bidwire/auction/internal/keys"
	"github.com/bidwire/auction/internal/metrics"
	"github.com/bidwire/auction/internal/products"
	"github.com/bidwire/auction/internal/realtime"
	"github.com/bidwire/auction/internal/storage"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
	hub *realtime.Hub
}

// NewHandler returns a router exposing the auction REST API and the
// websocket subscription endpoint. The hub may be nil when websocket fan-out
// is disabled.
func NewHandler(application *app.Application, hub *realtime.Hub) http.Handler {
	h := &handler{app: application, hub: hub}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/").Subrouter()
	api.HandleFunc("/users", h.createUser).Methods(http.MethodPost)
	api.HandleFunc("/products", h.createProduct).Methods(http.MethodPost)
	api.HandleFunc("/products", h.listProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", h.getProduct).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}/bids", h.placeBid).Methods(http.MethodPost)
	if hub != nil {
		r.HandleFunc("/ws/auctions/{id}", h.subscribe).Methods(http.MethodGet)
	}

	return metrics.InstrumentHandler("api", r)
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) createUser(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	u, err := h.app.Users.CreateUser(r.Context(), user.User{Name: payload.Name, Email: payload.Email})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse(u))
}

func (h *handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title         string    `json:"title"`
		Description   string    `json:"description"`
		SellerID      string    `json:"sellerId"`
		StartingPrice int64     `json:"startingPrice"`
		StartTime     time.Time `json:"auctionStartTime"`
		EndTime       time.Time `json:"auctionEndTime"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.app.Products.Create(r.Context(), auction.Auction{
		Title:         payload.Title,
		Description:   payload.Description,
		SellerID:      payload.SellerID,
		StartingPrice: payload.StartingPrice,
		StartTime:     payload.StartTime,
		EndTime:       payload.EndTime,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, products.ErrInvalid) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": created.ID})
}

func (h *handler) listProducts(w http.ResponseWriter, r *http.Request) {
	auctions, err := h.app.Products.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]map[string]any, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, auctionResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	detail, err := h.app.Products.Get(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	resp := auctionResponse(detail.Auction)
	resp["auctionState"] = detail.Snapshot
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) placeBid(w http.ResponseWriter, r *http.Request) {
	bidderID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if bidderID == "" {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("missing X-User-ID"))
		return
	}

	var payload struct {
		BidAmount int64 `json:"bidAmount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id := mux.Vars(r)["id"]
	snap, err := h.app.Bidding.PlaceBid(r.Context(), id, payload.BidAmount, bidderID)
	if err != nil {
		writeError(w, bidStatus(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

func (h *handler) subscribe(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.app.Products.Get(r.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	h.hub.Serve(w, r, keys.Topic(id))
}

// bidStatus maps the bidding sentinels onto HTTP statuses. Lock contention
// gets 423 Locked: the attempt failed cleanly and the client may retry.
func bidStatus(err error) int {
	switch {
	case errors.Is(err, bidding.ErrAuctionNotFound):
		return http.StatusNotFound
	case errors.Is(err, bidding.ErrAuctionClosed):
		return http.StatusConflict
	case errors.Is(err, bidding.ErrBidTooLow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, bidding.ErrLockContention):
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

func auctionResponse(a auction.Auction) map[string]any {
	return map[string]any{
		"id":               a.ID,
		"title":            a.Title,
		"description":      a.Description,
		"sellerId":         a.SellerID,
		"startingPrice":    a.StartingPrice,
		"winnerId":         a.WinnerID,
		"winningPrice":     a.WinningPrice,
		"auctionStartTime": a.StartTime,
		"auctionEndTime":   a.EndTime,
		"status":           a.Status,
	}
}

func userResponse(u user.User) map[string]any {
	return map[string]any{"id": u.ID, "name": u.Name, "email": u.Email}
}

func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
