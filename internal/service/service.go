package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kasirledger/internal/cache"
	"kasirledger/internal/domain"
	"kasirledger/internal/store"
)

var (
	ErrShiftNotActive   = errors.New("no active shift for outlet")
	ErrAlreadyProcessed = errors.New("sale already processed")
)

// AlreadyProcessedError reports a reversal attempted on a sale that is no
// longer COMPLETED, or that already carries a refund.
type AlreadyProcessedError struct {
	SaleID string
	Status string
}

func (e *AlreadyProcessedError) Error() string {
	return fmt.Sprintf("sale %s already processed (status %s)", e.SaleID, e.Status)
}

func (e *AlreadyProcessedError) Is(target error) bool {
	return target == ErrAlreadyProcessed
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// ShiftProvider answers whether an outlet currently has an open cash-register shift.
type ShiftProvider interface {
	ActiveShift(ctx context.Context, outletID string) (*domain.Shift, error)
}

type repoShifts struct {
	repo store.Repository
}

func (r repoShifts) ActiveShift(ctx context.Context, outletID string) (*domain.Shift, error) {
	return r.repo.GetActiveShift(ctx, outletID)
}

type Service struct {
	repo            store.Repository
	shifts          ShiftProvider
	summaries       cache.SummaryCache
	summaryTTL      time.Duration
	logger          *zap.Logger
	now             func() time.Time
	defaultOutletID string
	discountLimit   decimal.Decimal
	defaultTaxRate  decimal.Decimal

	ledger    *InventoryLedger
	evaluator *LowStockEvaluator
	audit     *AuditWriter
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithShiftProvider(provider ShiftProvider) Option {
	return func(s *Service) {
		if provider != nil {
			s.shifts = provider
		}
	}
}

func WithSummaryCache(c cache.SummaryCache, ttl time.Duration) Option {
	return func(s *Service) {
		if c != nil {
			s.summaries = c
			s.summaryTTL = ttl
		}
	}
}

// WithDiscountLimit caps total discount at percent of gross.
func WithDiscountLimit(percent decimal.Decimal) Option {
	return func(s *Service) {
		s.discountLimit = percent
	}
}

func WithDefaultTaxRate(percent decimal.Decimal) Option {
	return func(s *Service) {
		s.defaultTaxRate = percent
	}
}

func New(repo store.Repository, defaultOutletID string, opts ...Option) *Service {
	if defaultOutletID == "" {
		defaultOutletID = "main-store"
	}

	s := &Service{
		repo:            repo,
		shifts:          repoShifts{repo: repo},
		summaries:       cache.NoopSummaryCache{},
		logger:          zap.NewNop(),
		now:             func() time.Time { return time.Now().UTC() },
		defaultOutletID: defaultOutletID,
		discountLimit:   decimal.NewFromInt(50),
		defaultTaxRate:  decimal.Zero,
	}
	for _, opt := range opts {
		opt(s)
	}

	clock := func() time.Time { return s.now().UTC() }
	s.ledger = NewInventoryLedger(clock)
	s.evaluator = NewLowStockEvaluator(clock)
	s.audit = NewAuditWriter(clock)
	return s
}

func (s *Service) activeShift(ctx context.Context, outletID string) (*domain.Shift, error) {
	shift, err := s.shifts.ActiveShift(ctx, outletID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrShiftNotActive, outletID)
		}
		return nil, err
	}
	return shift, nil
}

func (s *Service) outletOrDefault(outletID string) string {
	outletID = strings.TrimSpace(outletID)
	if outletID == "" {
		return s.defaultOutletID
	}
	return outletID
}

// actorOr returns the username of the request actor. id is used only for
// calls made without an actor in the context.
func actorOr(ctx context.Context, id string) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	id = strings.TrimSpace(id)
	if id != "" {
		return id
	}
	return "system"
}

// approverOr honours a caller-supplied approver only for admins and for
// calls without a request actor.
func approverOr(ctx context.Context, approvedBy string, actorID string) string {
	approvedBy = strings.TrimSpace(approvedBy)
	if approvedBy == "" {
		return actorID
	}
	if actor, ok := ActorFromContext(ctx); ok && actor.Role != "admin" {
		return actorID
	}
	return approvedBy
}

func dayStartUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func parseDay(raw string, now time.Time) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return dayStartUTC(now), nil
	}
	parsed, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidTransaction)
	}
	return parsed.UTC(), nil
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentQRIS, domain.PaymentEWallet, domain.PaymentTransfer:
		return true
	default:
		return false
	}
}
