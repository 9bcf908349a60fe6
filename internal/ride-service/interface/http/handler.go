package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ride-share/internal/ride-service/domain"
	"ride-share/internal/ride-service/infrastructure/messaging"
	"ride-share/internal/ride-service/service"
	"ride-share/pkg/auth"
	"ride-share/pkg/logger"
	"ride-share/pkg/websocket"
)

const maxBodyBytes = 1 << 20

// Pinger reports whether the ride store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RideHandler exposes RideService over HTTP and the seat feed over WebSocket.
type RideHandler struct {
	rides    *service.RideService
	hub      *websocket.Hub
	verifier domain.IdentityVerifier
	store    Pinger
	logger   logger.Logger
}

// NewRideHandler creates a new ride handler
func NewRideHandler(
	rides *service.RideService,
	hub *websocket.Hub,
	verifier domain.IdentityVerifier,
	store Pinger,
	logger logger.Logger,
) *RideHandler {
	return &RideHandler{
		rides:    rides,
		hub:      hub,
		verifier: verifier,
		store:    store,
		logger:   logger,
	}
}

// Routes builds the gateway. authn guards every route that needs a caller.
func (h *RideHandler) Routes(authn func(http.Handler) http.Handler) http.Handler {
	protected := func(fn http.HandlerFunc) http.Handler { return authn(fn) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)

	// Public endpoints
	mux.HandleFunc("GET /rides", h.ListRides)
	mux.HandleFunc("GET /rides/{ride_id}", h.GetRide)

	// Protected endpoints - require JWT authentication
	mux.Handle("GET /me/rides", protected(h.MyRides))
	mux.Handle("GET /me/reservations", protected(h.MyReservations))
	mux.Handle("POST /rides", protected(h.CreateRide))
	mux.Handle("PATCH /rides/{ride_id}", protected(h.UpdateRide))
	mux.Handle("PUT /rides/{ride_id}", protected(h.UpdateRide))
	mux.Handle("DELETE /rides/{ride_id}", protected(h.DeleteRide))
	mux.Handle("POST /rides/{ride_id}/reservations", protected(h.BookRide))
	mux.Handle("DELETE /rides/{ride_id}/reservations/{reservation_id}", protected(h.CancelBooking))

	// Seat feed; the token travels in the first WebSocket message
	mux.HandleFunc("GET /ws/rides/{ride_id}", h.SeatFeed)

	return RequestID(AccessLog(h.logger, mux))
}

func (h *RideHandler) identity(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		h.writeError(w, r, "missing_identity", domain.Unauthenticatedf("authentication required"))
		return domain.Identity{}, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return domain.InvalidArgumentf("invalid request body")
	}
	return nil
}

// Health handles GET /health
func (h *RideHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.writeError(w, r, "health_check_failed", domain.Unavailable("ping store", err))
		return
	}
	writeSuccess(w, http.StatusOK, "ok", map[string]string{"status": "ok"})
}

// ListRides handles GET /rides
func (h *RideHandler) ListRides(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, r, "list_rides_invalid", err)
		return
	}
	rides, err := h.rides.ListRides(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, "list_rides_failed", err)
		return
	}
	writeSuccess(w, http.StatusOK, "rides found", toRideResponses(rides))
}

// parseFilter reads origin, destination, date, min_seats and max_price.
func parseFilter(r *http.Request) (domain.Filter, error) {
	q := r.URL.Query()
	f := domain.Filter{
		Origin:      strings.TrimSpace(q.Get("origin")),
		Destination: strings.TrimSpace(q.Get("destination")),
	}

	if raw := strings.TrimSpace(q.Get("date")); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			d, err = time.Parse(time.RFC3339, raw)
		}
		if err != nil {
			return domain.Filter{}, domain.InvalidArgumentf("date must be YYYY-MM-DD or an RFC 3339 timestamp")
		}
		f.Date = &d
	}
	if raw := strings.TrimSpace(q.Get("min_seats")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return domain.Filter{}, domain.InvalidArgumentf("min_seats must be a non-negative integer")
		}
		f.MinSeats = &n
	}
	if raw := strings.TrimSpace(q.Get("max_price")); raw != "" {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil || p < 0 {
			return domain.Filter{}, domain.InvalidArgumentf("max_price must be a non-negative number")
		}
		f.MaxPrice = &p
	}
	return f, nil
}

// GetRide handles GET /rides/{ride_id}
func (h *RideHandler) GetRide(w http.ResponseWriter, r *http.Request) {
	ride, err := h.rides.GetRide(r.Context(), r.PathValue("ride_id"))
	if err != nil {
		h.writeError(w, r, "get_ride_failed", err)
		return
	}
	writeSuccess(w, http.StatusOK, "ride found", toRideResponse(ride))
}

// MyRides handles GET /me/rides
func (h *RideHandler) MyRides(w http.ResponseWriter, r *http.Request) {
	h.listForUser(w, r, false)
}

// MyReservations handles GET /me/reservations
func (h *RideHandler) MyReservations(w http.ResponseWriter, r *http.Request) {
	h.listForUser(w, r, true)
}

func (h *RideHandler) listForUser(w http.ResponseWriter, r *http.Request, asRider bool) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	rides, err := h.rides.ListRidesForUser(r.Context(), id.ID, asRider)
	if err != nil {
		h.writeError(w, r, "list_user_rides_failed", err)
		return
	}
	writeSuccess(w, http.StatusOK, "rides found", toRideResponses(rides))
}

// CreateRide handles POST /rides
func (h *RideHandler) CreateRide(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req CreateRideRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, "parse_request_failed", err)
		return
	}
	departure, err := parseDepartureTime(req.DepartureTime)
	if err != nil {
		h.writeError(w, r, "parse_request_failed", err)
		return
	}
	seats, err := domain.ParseSeats(req.AvailableSeats.String())
	if err != nil {
		h.writeError(w, r, "parse_request_failed", err)
		return
	}

	ride, err := h.rides.CreateRide(r.Context(), id, service.CreateRideInput{
		Origin:        req.Origin,
		Destination:   req.Destination,
		DepartureTime: departure,
		Seats:         seats,
		Price:         req.Price,
		Description:   req.Description,
	})
	if err != nil {
		h.writeError(w, r, "create_ride_failed", err)
		return
	}
	writeSuccess(w, http.StatusCreated, "ride created", toRideResponse(ride))
}

// UpdateRide handles PATCH and PUT /rides/{ride_id}
func (h *RideHandler) UpdateRide(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req UpdateRideRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, "parse_request_failed", err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		h.writeError(w, r, "parse_request_failed", err)
		return
	}

	ride, err := h.rides.UpdateRide(r.Context(), id, r.PathValue("ride_id"), patch)
	if err != nil {
		h.writeError(w, r, "update_ride_failed", err)
		return
	}
	writeSuccess(w, http.StatusOK, "ride updated", toRideResponse(ride))
}

// DeleteRide handles DELETE /rides/{ride_id}
func (h *RideHandler) DeleteRide(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	rideID := r.PathValue("ride_id")
	if err := h.rides.DeleteRide(r.Context(), id, rideID); err != nil {
		h.writeError(w, r, "delete_ride_failed", err)
		return
	}
	writeSuccess(w, http.StatusOK, "ride deleted", map[string]string{"ride_id": rideID})
}

// BookRide handles POST /rides/{ride_id}/reservations
func (h *RideHandler) BookRide(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req BookRideRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, "parse_request_failed", err)
		return
	}
	seats, err := domain.ParseSeats(req.Seats.String())
	if err != nil {
		h.writeError(w, r, "parse_request_failed", err)
		return
	}

	booking, err := h.rides.BookRide(r.Context(), id, r.PathValue("ride_id"), seats)
	if err != nil {
		h.writeError(w, r, "book_ride_failed", err)
		return
	}
	writeSuccess(w, http.StatusCreated, "reservation created", BookingResponse{
		Reservation: toReservationResponse(booking.Reservation),
		Ride:        toRideResponse(booking.Ride),
	})
}

// CancelBooking handles DELETE /rides/{ride_id}/reservations/{reservation_id}
func (h *RideHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	ride, err := h.rides.CancelBooking(r.Context(), id, r.PathValue("ride_id"), r.PathValue("reservation_id"))
	if err != nil {
		h.writeError(w, r, "cancel_booking_failed", err)
		return
	}
	writeSuccess(w, http.StatusOK, "reservation cancelled", toRideResponse(ride))
}

// SeatFeed handles GET /ws/rides/{ride_id}. The ride must exist before the
// upgrade; subscribers first get a snapshot, then every change.
func (h *RideHandler) SeatFeed(w http.ResponseWriter, r *http.Request) {
	rideID := r.PathValue("ride_id")
	if _, err := h.rides.GetRide(r.Context(), rideID); err != nil {
		h.writeError(w, r, "seat_feed_rejected", err)
		return
	}

	ws := websocket.NewHandler(
		h.logger,
		h.verifier,
		func(*http.Request) string { return rideID },
		func(conn *websocket.Connection) {
			log := h.logger.WithFields(logger.LogFields{"ride_id": rideID, "user_id": conn.Identity.ID})
			h.hub.Subscribe(conn)

			ride, err := h.rides.GetRide(context.Background(), rideID)
			if err != nil {
				log.Debug("seat_feed_ride_gone", domain.Message(err))
				h.hub.Unsubscribe(conn)
				return
			}
			conn.WriteJSON(messaging.Snapshot(ride))
			log.Info("seat_feed_connected", "Seat feed subscriber connected")

			conn.ReadPump(nil, func() {
				h.hub.Unsubscribe(conn)
				log.Info("seat_feed_disconnected", "Seat feed subscriber disconnected")
			})
		},
	)
	ws.ServeHTTP(w, r)
}
