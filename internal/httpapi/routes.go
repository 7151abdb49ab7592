package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterRoutes вешает операторский API моста под /api/v1.
// Авторизация — bearer-токен моста, выдаётся на весь сабраутер.
func RegisterRoutes(r *mux.Router, h *Handler, bridgeToken string) {
	sub := r.PathPrefix("/api/v1").Subrouter()
	sub.Use(BearerAuth(bridgeToken))

	sub.HandleFunc("/peers", h.CreatePeer).Methods(http.MethodPost)
	sub.HandleFunc("/peers", h.ListPeers).Methods(http.MethodGet)
	sub.HandleFunc("/peers/{username}/stats", h.PeerStats).Methods(http.MethodGet)
	sub.HandleFunc("/peers/{username}/config", h.PeerConfig).Methods(http.MethodGet)
	sub.HandleFunc("/peers/{username}/enable", h.EnablePeer).Methods(http.MethodPost)
	sub.HandleFunc("/peers/{username}/disable", h.DisablePeer).Methods(http.MethodPost)
	sub.HandleFunc("/peers/{username}/retry", h.RetryPeer).Methods(http.MethodPost)
	sub.HandleFunc("/peers/{username}", h.DeletePeer).Methods(http.MethodDelete)

	sub.HandleFunc("/reconcile", h.Reconcile).Methods(http.MethodPost)
	sub.HandleFunc("/stats/refresh", h.RefreshStats).Methods(http.MethodPost)
}
