// Package circulation lends and receives books. Each transition commits the
// loan row and its stock adjustment in a single transaction.
package circulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/database/loans"
	"github.com/mrlokans/biblioteca/internal/entities"
	"github.com/mrlokans/biblioteca/internal/inventory"
)

const DefaultLoanDays = 14

// ErrBookUnavailable is the ledger's insufficient-stock error, surfaced to
// borrowers as "book currently unavailable".
var ErrBookUnavailable = inventory.ErrInsufficientStock

var (
	ErrDuplicateLoan    = errors.New("borrower already has this book on loan")
	ErrLoanClosed       = errors.New("loan is already closed")
	ErrLoanNotFound     = errors.New("loan not found")
	ErrBookNotFound     = errors.New("book not found")
	ErrBorrowerNotFound = errors.New("borrower not found")
	ErrDueDateInPast    = errors.New("due date cannot be in the past")
)

// AuditRecorder receives one call per completed or failed transition.
type AuditRecorder interface {
	LogLoan(actorID uint, action string, loan *entities.Loan, err error)
}

type Service struct {
	db       *gorm.DB
	ledger   *inventory.Ledger
	audit    AuditRecorder
	tracer   trace.Tracer
	now      func() time.Time
	loanDays int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLoanDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.loanDays = days
		}
	}
}

func WithAuditRecorder(r AuditRecorder) Option {
	return func(s *Service) { s.audit = r }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("biblioteca/circulation") }
}

func NewService(db *gorm.DB, ledger *inventory.Ledger, opts ...Option) *Service {
	s := &Service{
		db:       db,
		ledger:   ledger,
		tracer:   otel.Tracer("biblioteca/circulation"),
		now:      time.Now,
		loanDays: DefaultLoanDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CheckOutRequest struct {
	BookID     uint
	BorrowerID uint
	DueDate    *time.Time // defaults to today plus the loan period
	ActorID    uint
}

// CheckOut lends one copy of a book. When no copy is on the shelf the loan is
// not created and ErrBookUnavailable is returned.
func (s *Service) CheckOut(ctx context.Context, req CheckOutRequest) (*entities.Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.checkout",
		trace.WithAttributes(
			attribute.Int64("book.id", int64(req.BookID)),
			attribute.Int64("borrower.id", int64(req.BorrowerID)),
		),
	)
	defer span.End()

	now := s.now()
	today := DateOf(now)
	due := today.AddDate(0, 0, s.loanDays)
	if req.DueDate != nil {
		due = DateOf(*req.DueDate)
		if due.Before(today) {
			return nil, ErrDueDateInPast
		}
	}

	var loan *entities.Loan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&entities.User{}, req.BorrowerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBorrowerNotFound
			}
			return err
		}

		repo := loans.NewRepository(tx)
		held, err := repo.HasOpenLoan(req.BookID, req.BorrowerID)
		if err != nil {
			return err
		}
		if held {
			return ErrDuplicateLoan
		}

		if _, err := s.ledger.AdjustStock(ctx, tx, req.BookID, -1); err != nil {
			return ledgerError(err)
		}

		loan = &entities.Loan{
			Reference:  uuid.NewString(),
			BookID:     req.BookID,
			BorrowerID: req.BorrowerID,
			LoanedAt:   now.UTC(),
			DueDate:    due,
			Status:     entities.LoanStatusActive,
		}
		return repo.Create(loan)
	})
	if err != nil {
		s.fail(span, req.ActorID, "checkout", nil, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("loan.reference", loan.Reference))
	s.record(req.ActorID, "checkout", loan, nil)
	return s.reload(loan.ID)
}

// Return closes an active or overdue loan and puts the copy back on the shelf.
func (s *Service) Return(ctx context.Context, loanID, actorID uint) (*entities.Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return",
		trace.WithAttributes(attribute.Int64("loan.id", int64(loanID))))
	defer span.End()

	var loan entities.Loan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.loadOpen(tx, loanID, &loan); err != nil {
			return err
		}
		closed, err := loans.NewRepository(tx).Close(loanID, s.now().UTC())
		if err != nil {
			return err
		}
		if !closed {
			return ErrLoanClosed
		}
		if _, err := s.ledger.AdjustStock(ctx, tx, loan.BookID, +1); err != nil {
			return ledgerError(err)
		}
		return nil
	})
	if err != nil {
		s.fail(span, actorID, "return", &loan, err)
		return nil, err
	}

	s.record(actorID, "return", &loan, nil)
	return s.reload(loanID)
}

// Cancel deletes an open loan, as if it had never been made, and restores
// the copy.
func (s *Service) Cancel(ctx context.Context, loanID, actorID uint) error {
	ctx, span := s.tracer.Start(ctx, "circulation.cancel",
		trace.WithAttributes(attribute.Int64("loan.id", int64(loanID))))
	defer span.End()

	var loan entities.Loan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.loadOpen(tx, loanID, &loan); err != nil {
			return err
		}
		deleted, err := loans.NewRepository(tx).DeleteOpen(loanID)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrLoanClosed
		}
		if _, err := s.ledger.AdjustStock(ctx, tx, loan.BookID, +1); err != nil {
			return ledgerError(err)
		}
		return nil
	})
	if err != nil {
		s.fail(span, actorID, "cancel", &loan, err)
		return err
	}

	s.record(actorID, "cancel", &loan, nil)
	return nil
}

// MarkOverdue flags active loans whose due date is before the day of now.
// Stock is unaffected: the copy is still out.
func (s *Service) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.mark_overdue")
	defer span.End()

	n, err := loans.NewRepository(s.db.WithContext(ctx)).MarkOverdue(DateOf(now))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("mark overdue: %w", err)
	}
	span.SetAttributes(attribute.Int64("loans.marked", n))
	return n, nil
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Service) loadOpen(tx *gorm.DB, loanID uint, loan *entities.Loan) error {
	if err := tx.First(loan, loanID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrLoanNotFound
		}
		return err
	}
	if !loan.IsOpen() {
		return ErrLoanClosed
	}
	return nil
}

func (s *Service) reload(loanID uint) (*entities.Loan, error) {
	loan, err := loans.NewRepository(s.db).GetByID(loanID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrLoanNotFound
	}
	return loan, err
}

func (s *Service) record(actorID uint, action string, loan *entities.Loan, err error) {
	if s.audit != nil {
		s.audit.LogLoan(actorID, action, loan, err)
	}
}

func (s *Service) fail(span trace.Span, actorID uint, action string, loan *entities.Loan, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if loan != nil && loan.ID == 0 {
		loan = nil
	}
	s.record(actorID, action, loan, err)
}

func ledgerError(err error) error {
	if errors.Is(err, inventory.ErrBookNotFound) {
		return ErrBookNotFound
	}
	return err
}
