package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"wgwarden/internal/controller"
	"wgwarden/internal/models"
	"wgwarden/internal/stats"
	"wgwarden/internal/wgiface"
)

// Handler — HTTP-граница для моста (телеграм-бот и прочие операторские
// фронты). Кто именно действует, мост сообщает заголовком X-Operator-Id;
// авторизация самого моста — bearer-токеном на роутере.
type Handler struct {
	d *controller.Dispatcher
}

func New(d *controller.Dispatcher) *Handler { return &Handler{d: d} }

func operatorID(r *http.Request) (int64, error) {
	raw := r.Header.Get("X-Operator-Id")
	if raw == "" {
		return 0, errors.New("missing X-Operator-Id header")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad X-Operator-Id %q", raw)
	}
	return id, nil
}

// writeError раскладывает ошибки ядра по HTTP-кодам.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation) || errors.Is(err, models.ErrInvalidKey):
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), nil)
	case errors.Is(err, models.ErrUnauthorized):
		models.WriteProblem(w, http.StatusForbidden, "Forbidden", err.Error(), nil)
	case errors.Is(err, models.ErrNotFound):
		models.WriteProblem(w, http.StatusNotFound, "Not Found", err.Error(), nil)
	case errors.Is(err, models.ErrDuplicateUsername) ||
		errors.Is(err, models.ErrDuplicateAddress) ||
		errors.Is(err, models.ErrKeyCollision) ||
		errors.Is(err, models.ErrPoolExhausted):
		models.WriteProblem(w, http.StatusConflict, "Conflict", err.Error(), nil)
	case errors.Is(err, models.ErrPersistence):
		models.WriteProblem(w, http.StatusServiceUnavailable, "Service Unavailable", err.Error(), nil)
	default:
		models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", err.Error(), nil)
	}
}

type createRequest struct {
	Username string `json:"username"`
	OwnerID  int64  `json:"owner_id,omitempty"`
	// Импорт: публичный ключ принесён извне, приватный остаётся у оператора.
	PublicKey    string `json:"public_key,omitempty"`
	PresharedKey string `json:"preshared_key,omitempty"`
}

type peerResponse struct {
	Peer         models.Peer    `json:"peer"`
	ClientConfig string         `json:"client_config,omitempty"`
	BundleSHA    string         `json:"bundle_sha256,omitempty"`
	Apply        *applyResponse `json:"apply,omitempty"`
}

type applyResponse struct {
	Added      []string `json:"added,omitempty"`
	Removed    []string `json:"removed,omitempty"`
	Updated    []string `json:"updated,omitempty"`
	InSync     bool     `json:"in_sync"`
	Persistent int      `json:"persistent_failures,omitempty"`
}

func wrapReport(rep *wgiface.Report) *applyResponse {
	if rep == nil {
		return nil
	}
	return &applyResponse{
		Added:      rep.Added,
		Removed:    rep.Removed,
		Updated:    rep.Updated,
		InSync:     rep.InSync(),
		Persistent: len(rep.Persistent),
	}
}

// POST /api/v1/peers
func (h *Handler) CreatePeer(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), nil)
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "bad json body", nil)
		return
	}

	var res *controller.CreateResult
	if req.PublicKey != "" {
		res, err = h.d.ImportPeer(r.Context(), op, req.Username, req.PublicKey, req.PresharedKey, req.OwnerID)
	} else {
		res, err = h.d.CreatePeer(r.Context(), op, req.Username, req.OwnerID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusCreated, peerResponse{
		Peer:         res.Peer,
		ClientConfig: string(res.ClientConfig),
		BundleSHA:    res.BundleSHA,
		Apply:        wrapReport(res.Apply),
	})
}

// GET /api/v1/peers
func (h *Handler) ListPeers(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), nil)
		return
	}
	peers, err := h.d.ListPeers(r.Context(), op)
	if err != nil {
		writeError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, peers)
}

type trafficLine struct {
	Received string `json:"received"`
	Sent     string `json:"sent"`
}

type statsResponse struct {
	Username      string                 `json:"username"`
	Enabled       bool                   `json:"enabled"`
	LastHandshake *time.Time             `json:"last_handshake,omitempty"`
	Online        bool                   `json:"online"`
	Total         trafficLine            `json:"total"`
	BytesReceived int64                  `json:"bytes_received"`
	BytesSent     int64                  `json:"bytes_sent"`
	Daily         map[string]trafficLine `json:"daily,omitempty"`
	Weekly        map[string]trafficLine `json:"weekly,omitempty"`
	Monthly       map[string]trafficLine `json:"monthly,omitempty"`
}

func toLines(in map[string]models.TrafficStat) map[string]trafficLine {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]trafficLine, len(in))
	for k, v := range in {
		out[k] = trafficLine{Received: stats.HumanBytes(v.ReceivedBytes), Sent: stats.HumanBytes(v.SentBytes)}
	}
	return out
}

// GET /api/v1/peers/{username}/stats
func (h *Handler) PeerStats(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), nil)
		return
	}
	p, err := h.d.PeerStats(r.Context(), op, mux.Vars(r)["username"])
	if err != nil {
		writeError(w, err)
		return
	}

	resp := statsResponse{
		Username:      p.Username,
		Enabled:       p.Enabled,
		LastHandshake: p.LastHandshakeAt,
		Total: trafficLine{
			Received: stats.HumanBytes(p.BytesReceived),
			Sent:     stats.HumanBytes(p.BytesSent),
		},
		BytesReceived: p.BytesReceived,
		BytesSent:     p.BytesSent,
	}
	resp.Online = stats.Online(p.LastHandshakeAt, time.Now())
	if len(p.TrafficPeriods) > 0 {
		var pt models.PeriodizedTraffic
		if err := json.Unmarshal(p.TrafficPeriods, &pt); err == nil {
			resp.Daily = toLines(pt.Daily)
			resp.Weekly = toLines(pt.Weekly)
			resp.Monthly = toLines(pt.Monthly)
		}
	}
	models.WriteJSON(w, http.StatusOK, resp)
}

// GET /api/v1/peers/{username}/config — архив с конфигом и QR.
func (h *Handler) PeerConfig(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), nil)
		return
	}
	username := mux.Vars(r)["username"]
	res, err := h.d.PeerConfig(r.Context(), op, username)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s-%s.tar.gz"`, username, res.BundleSHA[:8]))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Bundle)
}

func (h *Handler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	op, err := operatorID(r)
	if err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), nil)
		return
	}
	username := mux.Vars(r)["username"]
	var rp *wgiface.Report
	if enabled {
		rp, err = h.d.EnablePeer(r.Context(), op, username)
	} else {
		rp, err = h.d.DisablePeer(r.Context(), op, username)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, wrapReport(rp))
}

// POST /api/v1/peers/{username}/enable
func (h *Handler) EnablePeer(w http.ResponseWriter, r *http.Request) { h.setEnabled(w, r, true) }

// POST /api/v1/peers/{username}/disable
func (h *Handler) DisablePeer(w http.ResponseWriter, r *http.Request) { h.setEnabled(w, r, false) }

// DELETE /api/v1/peers/{username}
func (h *Handler) DeletePeer(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), nil)
		return
	}
	if err := h.d.DeletePeer(r.Context(), op, mux.Vars(r)["username"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/peers/{username}/retry — снять карантин сбоев и
// пересверить.
func (h *Handler) RetryPeer(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), nil)
		return
	}
	rep, err := h.d.RetryPeer(r.Context(), op, mux.Vars(r)["username"])
	if err != nil {
		writeError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, wrapReport(rep))
}

// POST /api/v1/reconcile — принудительная сверка интерфейса.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), nil)
		return
	}
	rep, err := h.d.ReconcileNow(r.Context(), op)
	if err != nil {
		writeError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, wrapReport(rep))
}

// POST /api/v1/stats/refresh — внеочередной проход статистики.
func (h *Handler) RefreshStats(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", err.Error(), nil)
		return
	}
	if err := h.d.RefreshStats(r.Context(), op); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
