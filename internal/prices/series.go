package prices

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
)

// Series is an in-memory Source. Tests use it in place of the database.
type Series struct {
	mu   sync.RWMutex
	bars map[string][]Bar // ticker -> bars sorted by date
}

// NewSeries creates an empty in-memory source.
func NewSeries() *Series {
	return &Series{bars: make(map[string][]Bar)}
}

// Add inserts or replaces the bar of ticker at b.Date.
func (s *Series) Add(ticker string, b Bar) {
	ticker = NormalizeTicker(ticker)
	b.Date = dates.Normalize(b.Date)

	s.mu.Lock()
	defer s.mu.Unlock()

	bars := s.bars[ticker]
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].Date.Before(b.Date) })
	if i < len(bars) && bars[i].Date.Equal(b.Date) {
		bars[i] = b
		return
	}
	bars = append(bars, Bar{})
	copy(bars[i+1:], bars[i:])
	bars[i] = b
	s.bars[ticker] = bars
}

// AddCloses adds one bar per consecutive calendar day starting at start, with
// open equal to close.
func (s *Series) AddCloses(ticker string, start time.Time, closes ...float64) {
	for i, c := range closes {
		s.Add(ticker, Bar{Date: dates.AddDays(start, i), Open: c, Close: c})
	}
}

func (s *Series) Bar(_ context.Context, ticker string, date time.Time) (Bar, error) {
	ticker = NormalizeTicker(ticker)
	date = dates.Normalize(date)

	s.mu.RLock()
	defer s.mu.RUnlock()

	bars := s.bars[ticker]
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].Date.Before(date) })
	if i < len(bars) && bars[i].Date.Equal(date) {
		return bars[i], nil
	}
	return Bar{}, fmt.Errorf("%s on %s: %w", ticker, dates.Format(date), ErrNoData)
}

func (s *Series) Range(_ context.Context, ticker string, start, end time.Time) ([]Bar, error) {
	ticker = NormalizeTicker(ticker)
	start, end = dates.Normalize(start), dates.Normalize(end)

	s.mu.RLock()
	defer s.mu.RUnlock()

	bars := s.bars[ticker]
	lo := sort.Search(len(bars), func(i int) bool { return !bars[i].Date.Before(start) })
	hi := sort.Search(len(bars), func(i int) bool { return bars[i].Date.After(end) })
	if lo >= hi {
		return nil, nil
	}
	return append([]Bar(nil), bars[lo:hi]...), nil
}

func (s *Series) Trailing(_ context.Context, ticker string, before time.Time, n int) ([]Bar, error) {
	if n <= 0 {
		return nil, nil
	}
	ticker = NormalizeTicker(ticker)
	before = dates.Normalize(before)

	s.mu.RLock()
	defer s.mu.RUnlock()

	bars := s.bars[ticker]
	hi := sort.Search(len(bars), func(i int) bool { return !bars[i].Date.Before(before) })
	lo := hi - n
	if lo < 0 {
		lo = 0
	}
	return append([]Bar(nil), bars[lo:hi]...), nil
}
