package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"attend/cmd/internal/attendance"
	"attend/cmd/internal/directory"
	"attend/cmd/internal/notify"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 200

	notifyTimeout = 10 * time.Second
)

// Config tunes the dispatch boundary.
type Config struct {
	// Debounce suppresses repeat taps of the same card within the
	// interval. Zero disables.
	Debounce time.Duration

	// WindowStart/WindowEnd, when both set, reject opening taps outside
	// [start, end) local time. Closing taps always pass so nobody gets
	// stuck signed in.
	WindowStart *attendance.TimeOfDay
	WindowEnd   *attendance.TimeOfDay

	// Location interprets the tap window. Defaults to time.Local.
	Location *time.Location
}

// Handler serves the tap API and the live event feed.
type Handler struct {
	log      *slog.Logger
	engine   *attendance.Engine
	store    attendance.Store
	resolver directory.Resolver
	webhook  *notify.Webhook
	feed     *Feed
	metrics  *Metrics
	debounce *Debouncer
	cfg      Config

	// now is swapped in tests.
	now func() time.Time
}

// NewHandler wires the dispatch boundary. webhook and metrics may be nil.
func NewHandler(
	log *slog.Logger,
	engine *attendance.Engine,
	store attendance.Store,
	resolver directory.Resolver,
	feed *Feed,
	webhook *notify.Webhook,
	metrics *Metrics,
	cfg Config,
) *Handler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Handler{
		log:      log,
		engine:   engine,
		store:    store,
		resolver: resolver,
		webhook:  webhook,
		feed:     feed,
		metrics:  metrics,
		debounce: NewDebouncer(cfg.Debounce),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Register mounts the dispatch routes.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/taps", h.handleTap)
	mux.HandleFunc("/v1/status", h.handleStatus)
	mux.HandleFunc("/v1/logs", h.handleLogs)
	mux.HandleFunc("/v1/members", h.handleRegister)
	mux.HandleFunc("/v1/events", h.feed.HandleWS)
}

func (h *Handler) handleTap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	var req tapRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if (req.CardID == "") == (req.Identity == "") {
		writeError(w, http.StatusBadRequest, "bad_request", "exactly one of card_id or identity is required")
		return
	}

	ctx := r.Context()
	now := h.now()

	var member directory.Member
	if req.CardID != "" {
		if !h.debounce.Allow("card:" + req.CardID) {
			h.metrics.Tap(ResultDebounced)
			writeError(w, http.StatusTooManyRequests, "debounced", "duplicate tap ignored")
			return
		}

		m, err := h.resolver.Resolve(ctx, req.CardID)
		if errors.Is(err, directory.ErrUnknownCard) {
			h.metrics.Tap(ResultUnknownCard)
			h.log.Info("tap.unknown_card", "card_id", req.CardID)
			writeError(w, http.StatusNotFound, "unknown_card", "card is not registered")
			return
		}
		if err != nil {
			h.metrics.Tap(ResultError)
			h.log.Error("tap.resolve.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "resolver_error", "directory lookup failed")
			return
		}
		member = m
	} else {
		if !h.debounce.Allow("id:" + req.Identity) {
			h.metrics.Tap(ResultDebounced)
			writeError(w, http.StatusTooManyRequests, "debounced", "duplicate tap ignored")
			return
		}
		member = directory.Member{ID: req.Identity, Name: req.Identity}
	}

	if h.rejectOutsideWindow(member.ID, now) {
		h.metrics.Tap(ResultOutsideWin)
		writeError(w, http.StatusForbidden, "outside_window", "sign-in is closed at this time")
		return
	}

	res, err := h.engine.ProcessTap(ctx, member.ID, now)
	switch {
	case err == nil:
		h.afterTap(member, res, now, true)
		writeJSON(w, http.StatusOK, toTapResponse(member, res, true))

	case attendance.IsOutOfOrder(err):
		h.metrics.Tap(ResultOutOfOrder)
		h.log.Info("tap.out_of_order", "identity", member.ID, "err", err)
		writeError(w, http.StatusConflict, "out_of_order", err.Error())

	case attendance.IsPersist(err):
		// The transition happened in memory; the store rebuild on next
		// restart reconciles. Surface both facts to the caller.
		h.metrics.PersistFailure()
		h.afterTap(member, res, now, false)
		writeJSON(w, http.StatusBadGateway, toTapResponse(member, res, false))

	default:
		h.metrics.Tap(ResultError)
		h.log.Error("tap.fail", "identity", member.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "tap_failed", "tap could not be processed")
	}
}

// rejectOutsideWindow applies the optional opening-tap window. Closing
// taps (identity currently signed in) are never rejected.
func (h *Handler) rejectOutsideWindow(identity string, now time.Time) bool {
	if h.cfg.WindowStart == nil || h.cfg.WindowEnd == nil {
		return false
	}
	if h.engine.State(identity) == attendance.SignedIn {
		return false
	}

	local := now.In(h.cfg.Location)
	start := h.cfg.WindowStart.On(local, h.cfg.Location)
	end := h.cfg.WindowEnd.On(local, h.cfg.Location)
	return local.Before(start) || !local.Before(end)
}

// afterTap fans a processed tap out to metrics, the live feed, the
// webhook, and the directory's presence flag. None of these can fail
// the tap.
func (h *Handler) afterTap(member directory.Member, res attendance.TapResult, at time.Time, persisted bool) {
	result := ResultTapIn
	kind := notify.TapIn
	if res.State == attendance.SignedOut {
		result = ResultTapOut
		kind = notify.TapOut
	}
	h.metrics.Tap(result)

	h.log.Info("tap",
		"identity", member.ID,
		"state", res.State,
		"session_id", res.Session.ID,
		"persisted", persisted,
	)

	if h.feed != nil {
		h.feed.Broadcast(tapEvent(member, res, at))
	}

	if pm, ok := h.resolver.(directory.PresenceMarker); ok {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		if err := pm.SetPresent(ctx, member.ID, res.State == attendance.SignedIn); err != nil {
			h.log.Error("tap.presence.fail", "identity", member.ID, "err", err)
		}
		cancel()
	}

	if h.webhook != nil {
		ev := notify.Event{Kind: kind, Name: member.Name, Position: member.Position, At: at, Duration: res.Duration}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			if err := h.webhook.Send(ctx, ev); err != nil {
				h.log.Error("notify.send.fail", "identity", member.ID, "err", err)
			}
		}()
	}
}

// HandleAutoClosed is the scheduler's fan-out hook: it mirrors swept
// sessions to metrics, the feed, and the webhook.
func (h *Handler) HandleAutoClosed(closed []attendance.Session) {
	h.metrics.AutoClosed(len(closed))

	for _, s := range closed {
		h.log.Info("autoclose", "identity", s.Identity, "session_id", s.ID)

		if h.feed != nil {
			h.feed.Broadcast(AutoCloseEvent(s))
		}

		if pm, ok := h.resolver.(directory.PresenceMarker); ok {
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			if err := pm.SetPresent(ctx, s.Identity, false); err != nil {
				h.log.Error("autoclose.presence.fail", "identity", s.Identity, "err", err)
			}
			cancel()
		}

		if h.webhook != nil {
			ev := notify.Event{Kind: notify.AutoClose, Name: s.Identity, At: h.now(), Duration: s.Duration}
			if s.End != nil {
				ev.At = *s.End
			}
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
				defer cancel()
				if err := h.webhook.Send(ctx, ev); err != nil {
					h.log.Error("notify.send.fail", "identity", ev.Name, "err", err)
				}
			}()
		}
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}

	open := h.engine.OpenSessions()
	resp := statusResponse{Open: make([]statusEntry, 0, len(open))}
	for _, s := range open {
		resp.Open = append(resp.Open, statusEntry{Identity: s.Identity, SessionID: s.ID, SignedIn: s.Start})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}

	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = min(n, maxLogLimit)
	}

	sessions, err := h.store.ListRecent(r.Context(), limit)
	if err != nil {
		h.log.Error("logs.list.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "store_error", "could not list sessions")
		return
	}

	resp := logsResponse{Sessions: make([]logEntry, 0, len(sessions))}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, toLogEntry(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	reg, ok := h.resolver.(directory.Registrar)
	if !ok {
		writeError(w, http.StatusNotImplemented, "registration_unsupported", "this directory does not support registration")
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.CardID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "card_id and name are required")
		return
	}

	m, err := reg.RegisterCard(r.Context(), req.CardID, req.Name, req.Position)
	if errors.Is(err, directory.ErrCardTaken) {
		writeError(w, http.StatusConflict, "card_taken", "card is already registered")
		return
	}
	if err != nil {
		h.log.Error("register.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "register_failed", "could not register card")
		return
	}

	h.log.Info("register", "member_id", m.ID, "name", m.Name)
	writeJSON(w, http.StatusCreated, memberResponse{ID: m.ID, Name: m.Name, Position: m.Position, CardID: m.CardID})
}

func toTapResponse(member directory.Member, res attendance.TapResult, persisted bool) tapResponse {
	return tapResponse{
		Identity:        member.ID,
		Name:            member.Name,
		Position:        member.Position,
		State:           string(res.State),
		SessionID:       res.Session.ID,
		DurationSeconds: durationSeconds(res.Duration),
		Persisted:       persisted,
	}
}
