// Package inventory keeps the per-book count of copies on the shelf.
//
// Every stock change goes through Ledger inside the caller's transaction,
// so a loan row and the stock it consumes commit or roll back together.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/biblioteca/internal/entities"
)

var (
	ErrInvalidDelta      = errors.New("stock adjustment must be +1 or -1")
	ErrInsufficientStock = errors.New("book currently unavailable")
	ErrStockCeiling      = errors.New("stock cannot exceed total copies")
	ErrBookNotFound      = errors.New("book not found")
	ErrInvalidTotal      = errors.New("total copies cannot be negative")
	ErrCopiesOnLoan      = errors.New("total copies cannot drop below copies on loan")
)

type Ledger struct {
	tracer trace.Tracer
}

func NewLedger() *Ledger {
	return &Ledger{tracer: otel.Tracer("biblioteca/inventory")}
}

// AdjustStock applies delta (-1 on checkout, +1 on return) to the book's stock
// and recomputes its status in the same statement. A rejected adjustment
// leaves the row untouched. tx must be the caller's transaction.
func (l *Ledger) AdjustStock(ctx context.Context, tx *gorm.DB, bookID uint, delta int) (*entities.Book, error) {
	ctx, span := l.tracer.Start(ctx, "inventory.adjust_stock",
		trace.WithAttributes(
			attribute.Int64("book.id", int64(bookID)),
			attribute.Int("stock.delta", delta),
		),
	)
	defer span.End()

	if delta != 1 && delta != -1 {
		return nil, ErrInvalidDelta
	}

	result := tx.WithContext(ctx).Model(&entities.Book{}).
		Where("id = ? AND stock + ? >= 0 AND stock + ? <= total_copies", bookID, delta, delta).
		Updates(map[string]any{
			"stock":  gorm.Expr("stock + ?", delta),
			"status": statusExpr(fmt.Sprintf("stock + %d", delta)),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("adjust stock: %w", result.Error)
	}

	book, err := load(ctx, tx, bookID)
	if err != nil {
		return nil, err
	}

	if result.RowsAffected == 0 {
		span.SetAttributes(attribute.Bool("stock.rejected", true))
		if book.Stock+delta < 0 {
			return nil, ErrInsufficientStock
		}
		return nil, ErrStockCeiling
	}

	span.SetAttributes(attribute.Int("stock.after", book.Stock))
	return book, nil
}

// SetTotalCopies changes how many copies the library owns. The shelf stock
// moves by the same amount, so copies currently on loan stay accounted for.
func (l *Ledger) SetTotalCopies(ctx context.Context, tx *gorm.DB, bookID uint, total int) (*entities.Book, error) {
	ctx, span := l.tracer.Start(ctx, "inventory.set_total_copies",
		trace.WithAttributes(
			attribute.Int64("book.id", int64(bookID)),
			attribute.Int("copies.total", total),
		),
	)
	defer span.End()

	if total < 0 {
		return nil, ErrInvalidTotal
	}

	newStock := fmt.Sprintf("stock + (%d - total_copies)", total)
	result := tx.WithContext(ctx).Model(&entities.Book{}).
		Where("id = ? AND "+newStock+" >= 0", bookID).
		Updates(map[string]any{
			"total_copies": total,
			"stock":        gorm.Expr(newStock),
			"status":       statusExpr(newStock),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("set total copies: %w", result.Error)
	}

	book, err := load(ctx, tx, bookID)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return nil, ErrCopiesOnLoan
	}
	return book, nil
}

// statusExpr evaluates against the pre-update row, as SQL does for every
// expression in one SET clause.
func statusExpr(newStock string) clause.Expr {
	return gorm.Expr("CASE WHEN "+newStock+" > 0 THEN ? ELSE ? END",
		entities.BookStatusAvailable, entities.BookStatusUnavailable)
}

func load(ctx context.Context, tx *gorm.DB, bookID uint) (*entities.Book, error) {
	var book entities.Book
	if err := tx.WithContext(ctx).First(&book, bookID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("load book: %w", err)
	}
	return &book, nil
}

// Store runs a ledger change in a transaction of its own, for stock changes
// that are not part of a loan transition.
type Store struct {
	db     *gorm.DB
	ledger *Ledger
}

func NewStore(db *gorm.DB, ledger *Ledger) *Store {
	return &Store{db: db, ledger: ledger}
}

func (s *Store) SetTotalCopies(ctx context.Context, bookID uint, total int) (*entities.Book, error) {
	var book *entities.Book
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		book, err = s.ledger.SetTotalCopies(ctx, tx, bookID, total)
		return err
	})
	return book, err
}
