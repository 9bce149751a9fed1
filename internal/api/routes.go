package api

import (
	"net/http"

	"github.com/tariffdesk/tariffdesk/pkg/routes"
)

func registerRoutes(mux *http.ServeMux, domain *Domain) {
	routes.Register(
		mux,
		domain.Settings.Handler().Routes(),
		domain.Sessions.Handler().Routes(),
		domain.Runs.Handler().Routes(),
		domain.Exceptions.Handler().Routes(),
	)
}
