package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// Portfolio routes
	api.HandleFunc("/portfolios/{owner}", handler.ListPortfolios).Methods("GET")
	api.HandleFunc("/portfolios/{owner}", handler.CreatePortfolio).Methods("POST")
	api.HandleFunc("/portfolios/{owner}/{name}", handler.GetPortfolio).Methods("GET")
	api.HandleFunc("/portfolios/{owner}/{name}/buy", handler.Buy).Methods("POST")
	api.HandleFunc("/portfolios/{owner}/{name}/sell", handler.Sell).Methods("POST")
	api.HandleFunc("/portfolios/{owner}/{name}/composition", handler.GetComposition).Methods("GET")
	api.HandleFunc("/portfolios/{owner}/{name}/cost-basis", handler.GetCostBasis).Methods("GET")
	api.HandleFunc("/portfolios/{owner}/{name}/value", handler.GetValue).Methods("GET")
	api.HandleFunc("/portfolios/{owner}/{name}/performance", handler.GetPerformance).Methods("GET")
	api.HandleFunc("/portfolios/{owner}/{name}/transactions", handler.GetTransactions).Methods("GET")
	api.HandleFunc("/portfolios/{owner}/{name}/invest", handler.Invest).Methods("POST")
	api.HandleFunc("/portfolios/{owner}/{name}/invest-periodically", handler.InvestPeriodically).Methods("POST")

	// Stock analytics routes
	api.HandleFunc("/stocks/{symbol}/moving-average", handler.GetMovingAverage).Methods("GET")
	api.HandleFunc("/stocks/{symbol}/trend", handler.GetTrend).Methods("GET")
	api.HandleFunc("/stocks/{symbol}/crossovers", handler.GetCrossovers).Methods("GET")
	api.HandleFunc("/stocks/{symbol}/performance", handler.GetStockPerformance).Methods("GET")

	return r
}
