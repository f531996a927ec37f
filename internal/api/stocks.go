package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/trogers1052/portfolio-ledger-service/internal/analytics"
	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
	"github.com/trogers1052/portfolio-ledger-service/internal/prices"
)

func symbolVar(r *http.Request) string {
	return prices.NormalizeTicker(mux.Vars(r)["symbol"])
}

// GetMovingAverage handles GET /stocks/{symbol}/moving-average?date=&days=
func (h *Handler) GetMovingAverage(w http.ResponseWriter, r *http.Request) {
	symbol := symbolVar(r)
	date, err := queryDate(r, "date", dates.Today(h.clock))
	if err != nil {
		respondError(w, err)
		return
	}
	days, err := queryInt(r, "days")
	if err != nil {
		respondError(w, err)
		return
	}

	avg, err := h.analyzer.MovingAverage(r.Context(), symbol, date, days)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":         symbol,
		"date":           dates.Format(date),
		"days":           days,
		"moving_average": avg,
	})
}

// GetTrend handles GET /stocks/{symbol}/trend?date= and ?start=&end=
func (h *Handler) GetTrend(w http.ResponseWriter, r *http.Request) {
	symbol := symbolVar(r)
	q := r.URL.Query()

	resp := map[string]interface{}{"symbol": symbol}
	var (
		trend analytics.Trend
		err   error
	)
	if q.Get("start") == "" && q.Get("end") == "" {
		date, derr := queryDate(r, "date", dates.Today(h.clock))
		if derr != nil {
			respondError(w, derr)
			return
		}
		trend, err = h.analyzer.TrendOn(r.Context(), symbol, date)
		resp["date"] = dates.Format(date)
	} else {
		start, end, rerr := h.queryRange(r)
		if rerr != nil {
			respondError(w, rerr)
			return
		}
		trend, err = h.analyzer.Trend(r.Context(), symbol, start, end)
		resp["start"], resp["end"] = dates.Format(start), dates.Format(end)
	}
	if err != nil {
		respondError(w, err)
		return
	}
	resp["trend"] = trend
	respondJSON(w, http.StatusOK, resp)
}

// GetCrossovers handles GET /stocks/{symbol}/crossovers?start=&end=, with
// optional short= and long= windows for dual crossovers
func (h *Handler) GetCrossovers(w http.ResponseWriter, r *http.Request) {
	symbol := symbolVar(r)
	start, end, err := h.queryRange(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var crossovers analytics.Crossovers
	q := r.URL.Query()
	if q.Get("short") == "" && q.Get("long") == "" {
		crossovers, err = h.analyzer.Crossovers(r.Context(), symbol, start, end)
	} else {
		short, serr := queryInt(r, "short")
		if serr != nil {
			respondError(w, serr)
			return
		}
		long, lerr := queryInt(r, "long")
		if lerr != nil {
			respondError(w, lerr)
			return
		}
		crossovers, err = h.analyzer.DualCrossovers(r.Context(), symbol, start, end, short, long)
	}
	if err != nil {
		respondError(w, err)
		return
	}

	signals := make(map[string]analytics.Signal, len(crossovers))
	for d, s := range crossovers {
		signals[dates.Format(d)] = s
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":     symbol,
		"start":      dates.Format(start),
		"end":        dates.Format(end),
		"crossovers": signals,
	})
}

// GetStockPerformance handles GET /stocks/{symbol}/performance?start=&end=
func (h *Handler) GetStockPerformance(w http.ResponseWriter, r *http.Request) {
	symbol := symbolVar(r)
	start, end, err := h.queryRange(r)
	if err != nil {
		respondError(w, err)
		return
	}

	rendered, err := h.analyzer.PerformanceChart(r.Context(), symbol, start, end)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, chartResponse{Start: dates.Format(start), End: dates.Format(end), Chart: rendered})
}
