package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/guardian-card/guardian-core/internal/model"
	"github.com/guardian-card/guardian-core/internal/store"
)

type handlers struct {
	svc Services
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps validation failures to 400 and missing records to 404.
// Anything else is logged and reported as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case model.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case eris.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	default:
		zap.L().Error("api: request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.Invalid("invalid request body: %v", err)
	}
	return nil
}

// userID prefers the header over a value supplied in the body or query.
func userID(r *http.Request, fallback string) string {
	if id := r.Header.Get(UserHeader); id != "" {
		return id
	}
	if fallback != "" {
		return fallback
	}
	return r.URL.Query().Get("user_id")
}

func (h *handlers) score(w http.ResponseWriter, r *http.Request) {
	var req model.ScoreRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.UserID = userID(r, req.UserID)
	resp, err := h.svc.Scorer.Score(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) authorize(w http.ResponseWriter, r *http.Request) {
	var req model.AuthorizeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.UserID = userID(r, req.UserID)
	v, err := h.svc.Authorize.Authorize(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handlers) override(w http.ResponseWriter, r *http.Request) {
	var req model.OverrideRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.UserID = userID(r, req.UserID)
	tok, err := h.svc.Authorize.RequestOverride(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "expires_at": tok.ExpiresAt})
}

func (h *handlers) locationUpdate(w http.ResponseWriter, r *http.Request) {
	var req model.PingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.UserID = userID(r, req.UserID)
	ping, err := h.svc.Location.Record(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ping)
}

func (h *handlers) locationCheck(w http.ResponseWriter, r *http.Request) {
	var req model.LocationCheckRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.UserID = userID(r, req.UserID)
	h.runLocationCheck(w, r, req)
}

func (h *handlers) locationCheckQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := model.LocationCheckRequest{UserID: userID(r, "")}
	for name, dst := range map[string]**float64{"lat": &req.Lat, "lon": &req.Lon} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, r, model.Invalid("%s must be a number", name))
			return
		}
		*dst = &v
	}
	if raw := q.Get("ts"); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, r, model.Invalid("ts must be RFC 3339"))
			return
		}
		req.At = ts
	}
	h.runLocationCheck(w, r, req)
}

func (h *handlers) runLocationCheck(w http.ResponseWriter, r *http.Request, req model.LocationCheckRequest) {
	out, err := h.svc.Dwell.Check(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) obligations(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Scorer.Obligations(r.Context(), userID(r, ""))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *handlers) analyticsSummary(w http.ResponseWriter, r *http.Request) {
	uid := userID(r, "")
	if uid == "" {
		writeError(w, r, model.Invalid("user_id is required"))
		return
	}
	s, err := h.svc.Journal.Summarize(r.Context(), uid, r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handlers) analyticsOverrides(w http.ResponseWriter, r *http.Request) {
	uid := userID(r, "")
	if uid == "" {
		writeError(w, r, model.Invalid("user_id is required"))
		return
	}
	list, err := h.svc.Journal.Overrides(r.Context(), uid, r.URL.Query().Get("range"), 50)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) putRule(w http.ResponseWriter, r *http.Request) {
	var rule model.BudgetRule
	if err := decode(r, &rule); err != nil {
		writeError(w, r, err)
		return
	}
	rule.UserID = userID(r, rule.UserID)
	out, err := h.svc.Authorize.PutRule(r.Context(), rule)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) putDwellConfig(w http.ResponseWriter, r *http.Request) {
	var c model.DwellConfig
	if err := decode(r, &c); err != nil {
		writeError(w, r, err)
		return
	}
	c.UserID = userID(r, c.UserID)
	if err := h.svc.Dwell.Configure(r.Context(), c); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handlers) listGeofences(w http.ResponseWriter, r *http.Request) {
	uid := userID(r, "")
	if uid == "" {
		writeError(w, r, model.Invalid("user_id is required"))
		return
	}
	fences, err := h.svc.Geofences.List(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if fences == nil {
		fences = []model.Geofence{}
	}
	writeJSON(w, http.StatusOK, fences)
}

func (h *handlers) createGeofence(w http.ResponseWriter, r *http.Request) {
	var g model.Geofence
	if err := decode(r, &g); err != nil {
		writeError(w, r, err)
		return
	}
	g.UserID = userID(r, g.UserID)
	out, err := h.svc.Geofences.Create(r.Context(), g)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *handlers) deleteGeofence(w http.ResponseWriter, r *http.Request) {
	uid := userID(r, "")
	if uid == "" {
		writeError(w, r, model.Invalid("user_id is required"))
		return
	}
	if err := h.svc.Geofences.Delete(r.Context(), uid, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
