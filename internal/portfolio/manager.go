package portfolio

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trogers1052/portfolio-ledger-service/internal/apperr"
	"github.com/trogers1052/portfolio-ledger-service/internal/dates"
	"github.com/trogers1052/portfolio-ledger-service/internal/log"
	"github.com/trogers1052/portfolio-ledger-service/internal/models"
	"github.com/trogers1052/portfolio-ledger-service/internal/prices"
	"github.com/trogers1052/portfolio-ledger-service/internal/strategy"
)

var (
	ErrNotFound    = fmt.Errorf("%w: portfolio not found", apperr.ErrNotFound)
	ErrExists      = fmt.Errorf("%w: portfolio already exists", apperr.ErrConflict)
	ErrInvalidName = fmt.Errorf("%w: owner and portfolio name are required", apperr.ErrValidation)
	ErrImmutable   = fmt.Errorf("%w: fixed portfolios cannot be modified", apperr.ErrValidation)
	ErrNoHoldings  = fmt.Errorf("%w: a fixed portfolio needs at least one holding and a date", apperr.ErrValidation)
)

// Journal persists portfolios and accepted transactions.
type Journal interface {
	// CreatePortfolio stores a portfolio and its initial holdings, or neither.
	CreatePortfolio(ctx context.Context, p *models.Portfolio, holdings []*models.Transaction) error
	// RecordTransactions stores every transaction or none of them.
	RecordTransactions(ctx context.Context, txs []*models.Transaction) error
}

// Replayer lists what a Journal stored, in insertion order.
type Replayer interface {
	ListPortfolios(ctx context.Context) ([]*models.Portfolio, error)
	ListTransactions(ctx context.Context) ([]*models.Transaction, error)
}

// Publisher announces recorded transactions.
type Publisher interface {
	PublishTransactionRecorded(ctx context.Context, tx *models.Transaction) error
}

// Order is a buy or sell request. An empty EventID gets a generated one.
type Order struct {
	EventID   string
	Owner     string
	Portfolio string
	Symbol    string
	Shares    float64
	Date      time.Time
	Source    string
}

type key struct{ owner, name string }

// entry serializes the mutations of one portfolio. Readers load the current
// portfolio without locking; mutations are applied to a copy that replaces it
// once journaled.
type entry struct {
	mu      sync.Mutex
	current atomic.Pointer[Portfolio]
}

// Manager resolves (owner, name) to portfolios and routes mutations through
// the journal and the publisher.
type Manager struct {
	mu         sync.RWMutex
	portfolios map[key]*entry

	prices    prices.Source
	executor  *strategy.Executor
	journal   Journal
	publisher Publisher
	clock     dates.Clock
}

// Option configures a Manager.
type Option func(*Manager)

// WithJournal persists portfolios and transactions.
func WithJournal(j Journal) Option {
	return func(m *Manager) { m.journal = j }
}

// WithPublisher publishes recorded transactions.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithClock pins "today".
func WithClock(clock dates.Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// NewManager creates a Manager valuing portfolios with src.
func NewManager(src prices.Source, opts ...Option) *Manager {
	m := &Manager{
		portfolios: make(map[key]*entry),
		prices:     src,
		clock:      dates.SystemClock,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.executor = strategy.NewExecutor(src, m.clock)
	return m
}

// Create declares an empty flexible portfolio.
func (m *Manager) Create(ctx context.Context, owner, name string) (*Portfolio, error) {
	k, err := newKey(owner, name)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.portfolios[k]; ok {
		return nil, fmt.Errorf("%s/%s: %w", k.owner, k.name, ErrExists)
	}
	if m.journal != nil {
		if err := m.journal.CreatePortfolio(ctx, &models.Portfolio{Owner: k.owner, Name: k.name}, nil); err != nil {
			return nil, fmt.Errorf("failed to persist portfolio: %w", err)
		}
	}
	p := newPortfolio(k.owner, k.name, m.prices, m.clock)
	m.register(k, p)
	return p, nil
}

// CreateFixed declares a portfolio holding shares of each ticker bought on
// date. Its holdings cannot be changed afterwards.
func (m *Manager) CreateFixed(ctx context.Context, owner, name string, date time.Time, holdings map[string]float64) (*Portfolio, error) {
	k, err := newKey(owner, name)
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 || date.IsZero() {
		return nil, ErrNoHoldings
	}

	b := &book{Portfolio: newPortfolio(k.owner, k.name, m.prices, m.clock), source: models.SourceAPI}
	b.fixed = true

	tickers := make([]string, 0, len(holdings))
	for ticker := range holdings {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	for _, ticker := range tickers {
		if _, err := b.apply(Order{Symbol: ticker, Shares: holdings[ticker], Date: date}, models.SideBuy); err != nil {
			return nil, fmt.Errorf("%s: %w", ticker, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.portfolios[k]; ok {
		return nil, fmt.Errorf("%s/%s: %w", k.owner, k.name, ErrExists)
	}
	if m.journal != nil {
		err := m.journal.CreatePortfolio(ctx, &models.Portfolio{Owner: k.owner, Name: k.name, Fixed: true}, b.txs)
		if err != nil {
			return nil, fmt.Errorf("failed to persist portfolio: %w", err)
		}
	}
	m.register(k, b.Portfolio)

	log.Info("fixed portfolio created",
		zap.String("owner", k.owner),
		zap.String("portfolio", k.name),
		zap.Int("holdings", len(b.txs)),
	)
	return b.Portfolio, nil
}

// register makes p the current state of k. Callers hold m.mu.
func (m *Manager) register(k key, p *Portfolio) {
	e := &entry{}
	e.current.Store(p)
	m.portfolios[k] = e
}

// Get returns the current state of a portfolio. The returned value is not
// affected by later mutations.
func (m *Manager) Get(owner, name string) (*Portfolio, error) {
	e, err := m.entry(owner, name)
	if err != nil {
		return nil, err
	}
	return e.current.Load(), nil
}

// List returns the portfolio names of owner, sorted.
func (m *Manager) List(owner string) []string {
	owner = strings.TrimSpace(owner)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for k := range m.portfolios {
		if k.owner == owner {
			names = append(names, k.name)
		}
	}
	sort.Strings(names)
	return names
}

// Buy records a purchase.
func (m *Manager) Buy(ctx context.Context, o Order) (*models.Transaction, error) {
	return m.trade(ctx, o, models.SideBuy)
}

// Sell records a sale.
func (m *Manager) Sell(ctx context.Context, o Order) (*models.Transaction, error) {
	return m.trade(ctx, o, models.SideSell)
}

func (m *Manager) trade(ctx context.Context, o Order, side string) (*models.Transaction, error) {
	var tx *models.Transaction
	err := m.mutate(ctx, o.Owner, o.Portfolio, func(b *book) error {
		var err error
		tx, err = b.apply(o, side)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Invest performs a single weighted buy.
func (m *Manager) Invest(ctx context.Context, owner, name string, inv strategy.Investment) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	err := m.mutate(ctx, owner, name, func(b *book) error {
		if err := m.executor.Invest(ctx, b, inv); err != nil {
			return err
		}
		txs = b.txs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// InvestPeriodically runs a periodic plan and returns the outcome of each step.
// Steps that bought nothing do not fail the call.
func (m *Manager) InvestPeriodically(ctx context.Context, owner, name string, plan strategy.Plan) ([]strategy.Step, error) {
	var steps []strategy.Step
	err := m.mutate(ctx, owner, name, func(b *book) error {
		var err error
		steps, err = m.executor.InvestPeriodically(ctx, b, plan)
		return err
	})
	return steps, err
}

// mutate applies fn to a copy of the portfolio, journals the transactions it
// produced and then makes the copy current. Nothing changes if fn or the
// journal fails.
func (m *Manager) mutate(ctx context.Context, owner, name string, fn func(*book) error) error {
	e, err := m.entry(owner, name)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.current.Load()
	if current.fixed {
		return fmt.Errorf("%s/%s: %w", current.owner, current.name, ErrImmutable)
	}

	b := &book{Portfolio: current.clone(), source: models.SourceStrategy}
	if err := fn(b); err != nil {
		return err
	}
	if len(b.txs) == 0 {
		return nil
	}

	if m.journal != nil {
		if err := m.journal.RecordTransactions(ctx, b.txs); err != nil {
			return fmt.Errorf("failed to record transactions: %w", err)
		}
	}
	e.current.Store(b.Portfolio)

	for _, tx := range b.txs {
		log.Info("transaction recorded",
			zap.String("owner", tx.Owner),
			zap.String("portfolio", tx.Portfolio),
			zap.String("side", tx.Side),
			zap.String("symbol", tx.Symbol),
			zap.String("shares", tx.Shares.String()),
			zap.String("date", dates.Format(tx.TradeDate)),
		)
		if m.publisher == nil {
			continue
		}
		if err := m.publisher.PublishTransactionRecorded(ctx, tx); err != nil {
			log.Warn("failed to publish transaction",
				zap.String("event_id", tx.EventID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Restore rebuilds every portfolio from a journal before the Manager serves
// requests. Transactions the ledger rejects are logged and skipped. The
// holdings of fixed portfolios are replayed like any other transaction.
func (m *Manager) Restore(ctx context.Context, r Replayer) error {
	ports, err := r.ListPortfolios(ctx)
	if err != nil {
		return fmt.Errorf("failed to list portfolios: %w", err)
	}
	txs, err := r.ListTransactions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list transactions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range ports {
		k, err := newKey(p.Owner, p.Name)
		if err != nil {
			return err
		}
		if _, ok := m.portfolios[k]; !ok {
			q := newPortfolio(k.owner, k.name, m.prices, m.clock)
			q.fixed = p.Fixed
			m.register(k, q)
		}
	}

	skipped := 0
	for _, tx := range txs {
		k, err := newKey(tx.Owner, tx.Portfolio)
		if err != nil {
			return fmt.Errorf("journaled transaction %d: %w", tx.ID, err)
		}
		p := m.current(k)

		shares := tx.Shares.InexactFloat64()
		switch tx.Side {
		case models.SideBuy:
			err = p.buy(tx.Symbol, shares, tx.TradeDate)
		case models.SideSell:
			err = p.sell(tx.Symbol, shares, tx.TradeDate)
		default:
			err = fmt.Errorf("unknown side %q", tx.Side)
		}
		if err != nil {
			skipped++
			log.Warn("skipping journaled transaction",
				zap.Int64("id", tx.ID),
				zap.String("event_id", tx.EventID),
				zap.Error(err),
			)
		}
	}

	log.Info("portfolios restored",
		zap.Int("portfolios", len(m.portfolios)),
		zap.Int("transactions", len(txs)),
		zap.Int("skipped", skipped),
	)
	return nil
}

// current returns the portfolio of k, registering it when the journal holds
// transactions of an undeclared portfolio. Callers hold m.mu.
func (m *Manager) current(k key) *Portfolio {
	if e, ok := m.portfolios[k]; ok {
		return e.current.Load()
	}
	p := newPortfolio(k.owner, k.name, m.prices, m.clock)
	m.register(k, p)
	return p
}

func (m *Manager) entry(owner, name string) (*entry, error) {
	k, err := newKey(owner, name)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.portfolios[k]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", k.owner, k.name, ErrNotFound)
	}
	return e, nil
}

func newKey(owner, name string) (key, error) {
	k := key{owner: strings.TrimSpace(owner), name: strings.TrimSpace(name)}
	if k.owner == "" || k.name == "" {
		return key{}, ErrInvalidName
	}
	return k, nil
}

// book is a staged copy of a portfolio collecting the transactions applied to
// it. It satisfies strategy.Book.
type book struct {
	*Portfolio
	source string
	txs    []*models.Transaction
}

// Buy records a strategy purchase.
func (b *book) Buy(ticker string, shares float64, date time.Time) error {
	_, err := b.apply(Order{Symbol: ticker, Shares: shares, Date: date, Source: b.source}, models.SideBuy)
	return err
}

func (b *book) apply(o Order, side string) (*models.Transaction, error) {
	var err error
	if side == models.SideSell {
		err = b.sell(o.Symbol, o.Shares, o.Date)
	} else {
		err = b.buy(o.Symbol, o.Shares, o.Date)
	}
	if err != nil {
		return nil, err
	}

	eventID := o.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	source := o.Source
	if source == "" {
		source = models.SourceAPI
	}
	tx := &models.Transaction{
		EventID:   eventID,
		Owner:     b.owner,
		Portfolio: b.name,
		Symbol:    prices.NormalizeTicker(o.Symbol),
		Side:      side,
		Shares:    decimal.NewFromFloat(o.Shares),
		TradeDate: dates.Normalize(o.Date),
		Source:    source,
	}
	b.txs = append(b.txs, tx)
	return tx, nil
}
