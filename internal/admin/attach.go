package admin

import (
	"github.com/gorilla/mux"

	"wgwarden/internal/controller"
)

// Attach вешает админку под /admin. UI действует от имени первого
// администратора из конфигурации; авторизацию браузера вешает реверс-прокси.
func Attach(r *mux.Router, d *controller.Dispatcher, adminID int64) {
	h := &Handler{d: d, admin: adminID, t: parseTemplates()}
	sub := r.PathPrefix("/admin").Subrouter()

	// pages
	sub.HandleFunc("", h.redirect("/admin/peers")).Methods("GET")
	sub.HandleFunc("/", h.redirect("/admin/peers")).Methods("GET")
	sub.HandleFunc("/peers", h.PeersList).Methods("GET")
	sub.HandleFunc("/peers/{username}", h.PeerDetail).Methods("GET")

	// api (redirect back)
	sub.HandleFunc("/api/peers/{username}/enable", h.APIEnable).Methods("POST")
	sub.HandleFunc("/api/peers/{username}/disable", h.APIDisable).Methods("POST")
	sub.HandleFunc("/api/peers/{username}/delete", h.APIDelete).Methods("POST")
	sub.HandleFunc("/api/reconcile", h.APIReconcile).Methods("POST")

	// static (very small)
	sub.HandleFunc("/static/style.css", serveCSS).Methods("GET")
}
