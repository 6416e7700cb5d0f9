package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes builds the router. allowedOrigins feeds CORS; empty means
// same-origin only.
func (s *Server) Routes(allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/events", s.handleEvent)

		r.Route("/ledger", func(r chi.Router) {
			r.Post("/accumulate", s.handleAccumulate)
			r.Post("/redeem", s.handleRedeem)
			r.Get("/{clientID}/{programID}/transactions", s.handleTransactions)
		})

		r.Get("/balances/{clientID}/{programID}", s.handleBalance)

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", s.handleListCampaigns)
			r.Post("/", s.handleCreateCampaign)
			r.Get("/{id}", s.handleGetCampaign)
			r.Get("/{id}/conversions", s.handleCampaignConversions)
		})

		r.Get("/interactions", s.handleListInteractions)
		r.Get("/conversions/revenue", s.handleConversionRevenue)
	})

	return r
}
