// Package ledger implements the temporal composition ledger of a portfolio.
//
// The ledger keeps one full snapshot of holdings per recorded date (never a
// delta). A buy recorded at date D clones the latest snapshot at or before D,
// adds the shares, stores it at D and then adds the same shares to every
// snapshot after D. A sell depletes rows most-recent-first among the
// snapshots at or before D, then subtracts the requested shares from every
// snapshot after D.
//
// Mutations are planned on copies of the affected rows and committed only once
// the whole plan is known to be valid, so a rejected sell leaves the ledger
// untouched.
package ledger

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/trogers1052/portfolio-ledger-service/internal/apperr"
	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
	"github.com/trogers1052/portfolio-ledger-service/internal/prices"
)

// epsilon below which a share quantity is treated as zero.
const epsilon = 1e-9

var (
	ErrInvalidTicker = fmt.Errorf("%w: ticker is required", apperr.ErrValidation)
	ErrInvalidShares = fmt.Errorf("%w: number of shares must be positive", apperr.ErrValidation)
	ErrFutureDate    = fmt.Errorf("%w: date cannot be in the future", apperr.ErrValidation)

	// ErrInsufficientShares is the fast check on the running net total.
	ErrInsufficientShares = fmt.Errorf("%w: not enough shares available", apperr.ErrConsistency)
	// ErrNotDepleted means the depletion walk ran out of rows at or before the sell date.
	ErrNotDepleted = fmt.Errorf("%w: not enough shares or stock not found by date", apperr.ErrConsistency)
	// ErrOverdrawsLater means the sell would leave a later snapshot negative.
	ErrOverdrawsLater = fmt.Errorf("%w: sale would leave a later snapshot with negative shares", apperr.ErrConsistency)
)

// Holding is one row of a snapshot.
type Holding struct {
	Ticker string
	Shares float64
}

// Snapshot is the full composition recorded at Date.
type Snapshot struct {
	Date     time.Time
	Holdings []Holding
}

// Shares returns the recorded shares of ticker, zero when absent.
func (s Snapshot) Shares(ticker string) float64 {
	if i := indexOf(s.Holdings, ticker); i >= 0 {
		return s.Holdings[i].Shares
	}
	return 0
}

// SellOutcome is the result of planning a sell.
type SellOutcome int

const (
	Depleted SellOutcome = iota
	InsufficientAtDate
	OverdrawsLater
)

func (o SellOutcome) String() string {
	switch o {
	case Depleted:
		return "Depleted"
	case InsufficientAtDate:
		return "InsufficientAtDate"
	case OverdrawsLater:
		return "OverdrawsLater"
	default:
		return fmt.Sprintf("SellOutcome(%d)", int(o))
	}
}

// Ledger is the date-keyed snapshot store of one portfolio. It is not safe for
// concurrent use; callers serialize access.
type Ledger struct {
	dates     []time.Time // sorted ascending
	snapshots map[time.Time][]Holding
	netShares map[string]float64
	clock     dates.Clock
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock pins "today" for the future-date validation.
func WithClock(clock dates.Clock) Option {
	return func(l *Ledger) { l.clock = clock }
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		snapshots: make(map[time.Time][]Holding),
		netShares: make(map[string]float64),
		clock:     dates.SystemClock,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Buy records shares of ticker acquired on date.
func (l *Ledger) Buy(ticker string, shares float64, date time.Time) error {
	ticker, date, err := l.validate(ticker, shares, date)
	if err != nil {
		return err
	}

	plan := make(map[time.Time][]Holding)

	var rows []Holding
	if base, ok := l.floor(date); ok {
		rows = clone(l.snapshots[base])
	}
	plan[date] = add(rows, ticker, shares)

	for _, d := range l.after(date) {
		plan[d] = add(clone(l.snapshots[d]), ticker, shares)
	}

	l.commit(plan)
	l.netShares[ticker] += shares
	return nil
}

// Sell records shares of ticker disposed of on date. See CanSell for the
// feasibility rules; a rejected sell does not modify the ledger.
func (l *Ledger) Sell(ticker string, shares float64, date time.Time) error {
	ticker, date, err := l.validate(ticker, shares, date)
	if err != nil {
		return err
	}

	if l.netShares[ticker]+epsilon < shares {
		return fmt.Errorf("cannot sell %s: %w", ticker, ErrInsufficientShares)
	}

	outcome, plan := l.planSell(ticker, shares, date)
	switch outcome {
	case Depleted:
	case InsufficientAtDate:
		return fmt.Errorf("cannot sell %s by %s: %w", ticker, dates.Format(date), ErrNotDepleted)
	default:
		return fmt.Errorf("cannot sell %s on %s: %w", ticker, dates.Format(date), ErrOverdrawsLater)
	}

	l.commit(plan)
	l.netShares[ticker] -= shares
	return nil
}

// CanSell plans a sell without applying it.
func (l *Ledger) CanSell(ticker string, shares float64, date time.Time) SellOutcome {
	outcome, _ := l.planSell(prices.NormalizeTicker(ticker), shares, dates.Normalize(date))
	return outcome
}

// planSell runs the depletion walk and the forward propagation on copies.
//
// Depletion visits snapshots dated at or before date, most recent first, and
// takes from each row of ticker up to its current value until the requested
// amount is covered. Forward propagation then subtracts the full requested
// amount from every later snapshot, which must not go negative.
func (l *Ledger) planSell(ticker string, shares float64, date time.Time) (SellOutcome, map[time.Time][]Holding) {
	plan := make(map[time.Time][]Holding)
	remaining := shares

	upTo := l.atOrBefore(date)
	for i := len(upTo) - 1; i >= 0 && remaining > epsilon; i-- {
		d := upTo[i]
		idx := indexOf(l.snapshots[d], ticker)
		if idx < 0 {
			continue
		}
		rows := clone(l.snapshots[d])
		take := math.Min(rows[idx].Shares, remaining)
		if take <= 0 {
			continue
		}
		rows[idx].Shares = clampZero(rows[idx].Shares - take)
		remaining -= take
		plan[d] = rows
	}
	if remaining > epsilon {
		return InsufficientAtDate, nil
	}

	for _, d := range l.after(date) {
		rows := add(clone(l.snapshots[d]), ticker, -shares)
		if rows[indexOf(rows, ticker)].Shares < 0 {
			return OverdrawsLater, nil
		}
		plan[d] = rows
	}
	return Depleted, plan
}

// CompositionAt returns the holdings at the latest snapshot dated at or before
// date. A date before every snapshot yields the earliest snapshot; an empty
// ledger yields an empty composition. Zero rows are left out.
func (l *Ledger) CompositionAt(date time.Time) Composition {
	comp := make(Composition)
	if len(l.dates) == 0 {
		return comp
	}
	d, ok := l.floor(dates.Normalize(date))
	if !ok {
		d = l.dates[0]
	}
	for _, h := range l.snapshots[d] {
		if math.Abs(h.Shares) > epsilon {
			comp[h.Ticker] = h.Shares
		}
	}
	return comp
}

// NetShares is the running total of buys minus sells of ticker, regardless of
// dates.
func (l *Ledger) NetShares(ticker string) float64 {
	return l.netShares[prices.NormalizeTicker(ticker)]
}

// Dates lists the snapshot dates, oldest first.
func (l *Ledger) Dates() []time.Time {
	return append([]time.Time(nil), l.dates...)
}

// Snapshots returns copies of every snapshot dated at or before until, oldest
// first. Zero rows are kept.
func (l *Ledger) Snapshots(until time.Time) []Snapshot {
	var out []Snapshot
	for _, d := range l.atOrBefore(dates.Normalize(until)) {
		out = append(out, Snapshot{Date: d, Holdings: clone(l.snapshots[d])})
	}
	return out
}

// Tickers lists every ticker ever recorded, sorted.
func (l *Ledger) Tickers() []string {
	seen := make(map[string]struct{})
	for _, rows := range l.snapshots {
		for _, h := range rows {
			seen[h.Ticker] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy sharing only the clock.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		dates:     append([]time.Time(nil), l.dates...),
		snapshots: make(map[time.Time][]Holding, len(l.snapshots)),
		netShares: make(map[string]float64, len(l.netShares)),
		clock:     l.clock,
	}
	for d, rows := range l.snapshots {
		c.snapshots[d] = clone(rows)
	}
	for t, s := range l.netShares {
		c.netShares[t] = s
	}
	return c
}

// Empty reports whether nothing was ever recorded.
func (l *Ledger) Empty() bool {
	return len(l.dates) == 0
}

func (l *Ledger) validate(ticker string, shares float64, date time.Time) (string, time.Time, error) {
	ticker = prices.NormalizeTicker(ticker)
	if ticker == "" {
		return "", time.Time{}, ErrInvalidTicker
	}
	if !(shares > 0) || math.IsInf(shares, 0) {
		return "", time.Time{}, ErrInvalidShares
	}
	date = dates.Normalize(date)
	if dates.IsFuture(date, l.clock) {
		return "", time.Time{}, fmt.Errorf("%s: %w", dates.Format(date), ErrFutureDate)
	}
	return ticker, date, nil
}

func (l *Ledger) commit(plan map[time.Time][]Holding) {
	for d, rows := range plan {
		if _, ok := l.snapshots[d]; !ok {
			l.insertDate(d)
		}
		l.snapshots[d] = rows
	}
}

func (l *Ledger) insertDate(d time.Time) {
	i := sort.Search(len(l.dates), func(i int) bool { return !l.dates[i].Before(d) })
	l.dates = append(l.dates, time.Time{})
	copy(l.dates[i+1:], l.dates[i:])
	l.dates[i] = d
}

// floor finds the latest snapshot date at or before date.
func (l *Ledger) floor(date time.Time) (time.Time, bool) {
	i := sort.Search(len(l.dates), func(i int) bool { return l.dates[i].After(date) })
	if i == 0 {
		return time.Time{}, false
	}
	return l.dates[i-1], true
}

func (l *Ledger) atOrBefore(date time.Time) []time.Time {
	i := sort.Search(len(l.dates), func(i int) bool { return l.dates[i].After(date) })
	return l.dates[:i]
}

func (l *Ledger) after(date time.Time) []time.Time {
	i := sort.Search(len(l.dates), func(i int) bool { return l.dates[i].After(date) })
	return l.dates[i:]
}

func clone(rows []Holding) []Holding {
	return append([]Holding(nil), rows...)
}

func indexOf(rows []Holding, ticker string) int {
	for i, h := range rows {
		if h.Ticker == ticker {
			return i
		}
	}
	return -1
}

// add applies delta to the row of ticker, appending the row when absent.
func add(rows []Holding, ticker string, delta float64) []Holding {
	if i := indexOf(rows, ticker); i >= 0 {
		rows[i].Shares = clampZero(rows[i].Shares + delta)
		return rows
	}
	return append(rows, Holding{Ticker: ticker, Shares: delta})
}

func clampZero(v float64) float64 {
	if math.Abs(v) < epsilon {
		return 0
	}
	return v
}
