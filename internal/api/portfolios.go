package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/trogers1052/portfolio-ledger-service/internal/chart"
	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
	"github.com/trogers1052/portfolio-ledger-service/internal/models"
	"github.com/trogers1052/portfolio-ledger-service/internal/portfolio"
	"github.com/trogers1052/portfolio-ledger-service/internal/strategy"
)

type portfolioResponse struct {
	Owner string   `json:"owner"`
	Name  string   `json:"name"`
	Fixed bool     `json:"fixed"`
	Dates []string `json:"dates"`
}

// createRequest declares a flexible portfolio, or a fixed one when Fixed is
// set, holding Holdings bought on Date.
type createRequest struct {
	Name     string             `json:"name"`
	Fixed    bool               `json:"fixed"`
	Date     string             `json:"date"`
	Holdings map[string]float64 `json:"holdings"`
}

type tradeRequest struct {
	EventID string  `json:"event_id"`
	Symbol  string  `json:"symbol"`
	Shares  float64 `json:"shares"`
	Date    string  `json:"date"`
}

type investRequest struct {
	Amount float64            `json:"amount"`
	Ratios map[string]float64 `json:"ratios"`
	Date   string             `json:"date"`
}

type periodicRequest struct {
	Amount       float64            `json:"amount"`
	Ratios       map[string]float64 `json:"ratios"`
	Start        string             `json:"start"`
	End          string             `json:"end"`
	IntervalDays int                `json:"interval_days"`
}

type stepResponse struct {
	Scheduled string `json:"scheduled"`
	Date      string `json:"date"`
	Attempts  int    `json:"attempts"`
	State     string `json:"state"`
	Error     string `json:"error,omitempty"`
}

func portfolioVars(r *http.Request) (string, string) {
	vars := mux.Vars(r)
	return vars["owner"], vars["name"]
}

func toPortfolioResponse(p *portfolio.Portfolio) portfolioResponse {
	resp := portfolioResponse{Owner: p.Owner(), Name: p.Name(), Fixed: p.Fixed(), Dates: []string{}}
	for _, d := range p.Dates() {
		resp.Dates = append(resp.Dates, dates.Format(d))
	}
	return resp
}

// CreatePortfolio handles POST /portfolios/{owner}
// Body: {"name": "..."} or {"name": "...", "fixed": true, "date": "yyyy-MM-dd", "holdings": {"AAPL": 10}}
func (h *Handler) CreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	owner := mux.Vars(r)["owner"]

	var (
		p   *portfolio.Portfolio
		err error
	)
	if req.Fixed {
		var date time.Time
		if date, err = parseDate("date", req.Date); err != nil {
			respondError(w, err)
			return
		}
		p, err = h.portfolios.CreateFixed(r.Context(), owner, req.Name, date, req.Holdings)
	} else {
		p, err = h.portfolios.Create(r.Context(), owner, req.Name)
	}
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toPortfolioResponse(p))
}

// ListPortfolios handles GET /portfolios/{owner}
func (h *Handler) ListPortfolios(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	names := h.portfolios.List(owner)
	if names == nil {
		names = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"owner": owner, "portfolios": names})
}

// GetPortfolio handles GET /portfolios/{owner}/{name}
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := h.portfolios.Get(portfolioVars(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toPortfolioResponse(p))
}

// Buy handles POST /portfolios/{owner}/{name}/buy
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, h.portfolios.Buy)
}

// Sell handles POST /portfolios/{owner}/{name}/sell
func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, h.portfolios.Sell)
}

func (h *Handler) trade(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, o portfolio.Order) (*models.Transaction, error)) {
	var req tradeRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		respondError(w, err)
		return
	}

	owner, name := portfolioVars(r)
	tx, err := apply(r.Context(), portfolio.Order{
		EventID:   req.EventID,
		Owner:     owner,
		Portfolio: name,
		Symbol:    req.Symbol,
		Shares:    req.Shares,
		Date:      date,
		Source:    models.SourceAPI,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, tx)
}

// GetComposition handles GET /portfolios/{owner}/{name}/composition?date=
func (h *Handler) GetComposition(w http.ResponseWriter, r *http.Request) {
	p, date, ok := h.portfolioAt(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"date":        dates.Format(date),
		"composition": p.CompositionAt(date).Format(),
	})
}

// GetCostBasis handles GET /portfolios/{owner}/{name}/cost-basis?date=
func (h *Handler) GetCostBasis(w http.ResponseWriter, r *http.Request) {
	p, date, ok := h.portfolioAt(w, r)
	if !ok {
		return
	}
	basis, err := p.CostBasis(r.Context(), date)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"date": dates.Format(date), "cost_basis": basis})
}

// GetValue handles GET /portfolios/{owner}/{name}/value?date=
func (h *Handler) GetValue(w http.ResponseWriter, r *http.Request) {
	p, date, ok := h.portfolioAt(w, r)
	if !ok {
		return
	}
	value, err := p.TotalValue(r.Context(), date)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"date": dates.Format(date), "value": value})
}

// GetPerformance handles GET /portfolios/{owner}/{name}/performance?start=&end=
func (h *Handler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	p, err := h.portfolios.Get(portfolioVars(r))
	if err != nil {
		respondError(w, err)
		return
	}
	start, end, err := h.queryRange(r)
	if err != nil {
		respondError(w, err)
		return
	}

	points, err := p.Performance(r.Context(), start, end)
	if err != nil {
		respondError(w, err)
		return
	}
	resp := chartResponse{Start: dates.Format(start), End: dates.Format(end), Chart: chart.Render(points)}
	for _, pt := range points {
		resp.Points = append(resp.Points, pointResponse{Date: dates.Format(pt.Date), Value: pt.Value})
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetTransactions handles GET /portfolios/{owner}/{name}/transactions
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	owner, name := portfolioVars(r)
	p, err := h.portfolios.Get(owner, name)
	if err != nil {
		respondError(w, err)
		return
	}
	if h.store == nil {
		respondError(w, errNoJournal)
		return
	}

	txs, err := h.store.GetTransactionsByPortfolio(r.Context(), p.Owner(), p.Name())
	if err != nil {
		respondError(w, err)
		return
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	respondJSON(w, http.StatusOK, txs)
}

// Invest handles POST /portfolios/{owner}/{name}/invest
func (h *Handler) Invest(w http.ResponseWriter, r *http.Request) {
	var req investRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		respondError(w, err)
		return
	}

	owner, name := portfolioVars(r)
	txs, err := h.portfolios.Invest(r.Context(), owner, name, strategy.Investment{
		Amount: req.Amount,
		Ratios: req.Ratios,
		Date:   date,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, txs)
}

// InvestPeriodically handles POST /portfolios/{owner}/{name}/invest-periodically
func (h *Handler) InvestPeriodically(w http.ResponseWriter, r *http.Request) {
	var req periodicRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	start, err := parseDate("start", req.Start)
	if err != nil {
		respondError(w, err)
		return
	}
	var end time.Time
	if req.End != "" {
		if end, err = parseDate("end", req.End); err != nil {
			respondError(w, err)
			return
		}
	}

	owner, name := portfolioVars(r)
	steps, err := h.portfolios.InvestPeriodically(r.Context(), owner, name, strategy.Plan{
		Amount:       req.Amount,
		Ratios:       req.Ratios,
		Start:        start,
		End:          end,
		IntervalDays: req.IntervalDays,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	resp := make([]stepResponse, 0, len(steps))
	for _, s := range steps {
		sr := stepResponse{
			Scheduled: dates.Format(s.Scheduled),
			Date:      dates.Format(s.Date),
			Attempts:  s.Attempts,
			State:     s.State.String(),
		}
		if s.Err != nil {
			sr.Error = s.Err.Error()
		}
		resp = append(resp, sr)
	}
	respondJSON(w, http.StatusOK, resp)
}

// portfolioAt resolves the portfolio of the route and the date query, which
// defaults to today. It writes the error response itself.
func (h *Handler) portfolioAt(w http.ResponseWriter, r *http.Request) (*portfolio.Portfolio, time.Time, bool) {
	p, err := h.portfolios.Get(portfolioVars(r))
	if err != nil {
		respondError(w, err)
		return nil, time.Time{}, false
	}
	date, err := queryDate(r, "date", dates.Today(h.clock))
	if err != nil {
		respondError(w, err)
		return nil, time.Time{}, false
	}
	return p, date, true
}

func (h *Handler) queryRange(r *http.Request) (time.Time, time.Time, error) {
	start, err := queryDate(r, "start", time.Time{})
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := queryDate(r, "end", time.Time{})
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
