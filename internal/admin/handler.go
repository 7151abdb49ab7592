package admin

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"wgwarden/internal/controller"
	"wgwarden/internal/models"
	"wgwarden/internal/stats"
)

type Handler struct {
	d     *controller.Dispatcher
	admin int64
	t     pageTemplates
}

func (h *Handler) redirect(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, path, http.StatusFound)
	}
}

func (h *Handler) render(w http.ResponseWriter, page string, data any) {
	t, ok := h.t[page]
	if !ok {
		http.Error(w, "template not found: "+page, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ---------- Pages ----------

type peerRow struct {
	Username  string
	Address   string
	Enabled   bool
	Online    bool
	Handshake string
	Received  string
	Sent      string
}

func toRow(p models.Peer) peerRow {
	row := peerRow{
		Username: p.Username,
		Address:  p.Address,
		Enabled:  p.Enabled,
		Received: stats.HumanBytes(p.BytesReceived),
		Sent:     stats.HumanBytes(p.BytesSent),
	}
	if p.LastHandshakeAt != nil {
		row.Handshake = p.LastHandshakeAt.Format("2006-01-02 15:04:05")
	}
	row.Online = stats.Online(p.LastHandshakeAt, time.Now())
	return row
}

func (h *Handler) PeersList(w http.ResponseWriter, r *http.Request) {
	peers, err := h.d.ListPeers(r.Context(), h.admin)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	rows := make([]peerRow, 0, len(peers))
	for _, p := range peers {
		if q != "" && !strings.Contains(p.Username, q) && !strings.Contains(p.Address, q) {
			continue
		}
		rows = append(rows, toRow(p))
	}
	h.render(w, "peers_list.tmpl", map[string]any{
		"Title": "Peers",
		"Rows":  rows,
		"Query": q,
	})
}

type periodRow struct {
	Key      string
	Received string
	Sent     string
}

func toPeriodRows(in map[string]models.TrafficStat) []periodRow {
	out := make([]periodRow, 0, len(in))
	for k, v := range in {
		out = append(out, periodRow{
			Key:      k,
			Received: stats.HumanBytes(v.ReceivedBytes),
			Sent:     stats.HumanBytes(v.SentBytes),
		})
	}
	// свежие периоды сверху
	sort.Slice(out, func(i, j int) bool { return out[i].Key > out[j].Key })
	return out
}

func (h *Handler) PeerDetail(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	p, err := h.d.PeerStats(r.Context(), h.admin, username)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	var pt models.PeriodizedTraffic
	if len(p.TrafficPeriods) > 0 {
		_ = json.Unmarshal(p.TrafficPeriods, &pt)
	}
	h.render(w, "peer_detail.tmpl", map[string]any{
		"Title":    "Peer " + p.Username,
		"Peer":     p,
		"Row":      toRow(*p),
		"Imported": p.Imported(),
		"Daily":    toPeriodRows(pt.Daily),
		"Weekly":   toPeriodRows(pt.Weekly),
		"Monthly":  toPeriodRows(pt.Monthly),
	})
}

// ---------- API ----------

func (h *Handler) APIEnable(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	if _, err := h.d.EnablePeer(r.Context(), h.admin, username); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/admin/peers/"+username, http.StatusFound)
}

func (h *Handler) APIDisable(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	if _, err := h.d.DisablePeer(r.Context(), h.admin, username); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/admin/peers/"+username, http.StatusFound)
}

func (h *Handler) APIDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.d.DeletePeer(r.Context(), h.admin, mux.Vars(r)["username"]); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/admin/peers", http.StatusFound)
}

func (h *Handler) APIReconcile(w http.ResponseWriter, r *http.Request) {
	rep, err := h.d.ReconcileNow(r.Context(), h.admin)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"added":   rep.Added,
		"removed": rep.Removed,
		"updated": rep.Updated,
		"in_sync": rep.InSync(),
	})
}
