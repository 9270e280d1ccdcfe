// Package reports runs read-only aggregate queries over the catalog and
// loan tables. Queries are built with goqu and executed through sqlx on the
// same *sql.DB that gorm uses.
package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3" // dialect registration
	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"

	"github.com/mrlokans/biblioteca/internal/entities"
)

const (
	dialectSQLite = "sqlite3"
	driverName    = "sqlite3"

	tableBooks = "books"
	tableLoans = "loans"
	tableUsers = "users"

	DefaultTopLimit = 5
)

var ErrBuildingQuery = errors.New("building report query failed")

var openStatuses = []string{string(entities.LoanStatusActive), string(entities.LoanStatusOverdue)}

type LoanCounts struct {
	Active   int64 `json:"activos"`
	Returned int64 `json:"devueltos"`
	Overdue  int64 `json:"vencidos"`
	Total    int64 `json:"total"`
}

type StockSummary struct {
	Titles      int64 `db:"titles" json:"titulos"`
	Copies      int64 `db:"copies" json:"ejemplares"`
	OnShelf     int64 `db:"on_shelf" json:"en_estante"`
	OnLoan      int64 `db:"-" json:"prestados"`
	Unavailable int64 `db:"unavailable" json:"no_disponibles"`
}

type BorrowedBook struct {
	BookID uint   `db:"book_id" json:"libro_id"`
	Title  string `db:"title" json:"titulo"`
	ISBN   string `db:"isbn" json:"isbn"`
	Loans  int64  `db:"loan_count" json:"prestamos"`
}

type OverdueLoan struct {
	LoanID    uint      `db:"loan_id" json:"prestamo_id"`
	Reference string    `db:"reference" json:"referencia"`
	BookTitle string    `db:"title" json:"titulo"`
	Username  string    `db:"username" json:"usuario"`
	FirstName string    `db:"first_name" json:"-"`
	LastName  string    `db:"last_name" json:"-"`
	DueDate   time.Time `db:"due_date" json:"fecha_devolucion_esperada"`
	DaysLate  int       `db:"-" json:"dias_retraso"`
}

// BorrowerName is the borrower's full name, or the username when unset.
func (o OverdueLoan) BorrowerName() string {
	u := entities.User{Username: o.Username, FirstName: o.FirstName, LastName: o.LastName}
	return u.FullName()
}

type Summary struct {
	Loans       LoanCounts     `json:"prestamos"`
	Stock       StockSummary   `json:"inventario"`
	TopBorrowed []BorrowedBook `json:"mas_prestados"`
	Overdue     []OverdueLoan  `json:"vencidos"`
}

type Repository struct {
	db      *sqlx.DB
	builder goqu.DialectWrapper
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db, builder: goqu.Dialect(dialectSQLite)}
}

// FromGorm shares gorm's connection pool, so reports see committed ledger
// state without opening a second SQLite connection.
func FromGorm(db *gorm.DB) (*Repository, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access sql.DB: %w", err)
	}
	return NewRepository(sqlx.NewDb(sqlDB, driverName)), nil
}

func (r *Repository) LoanCounts(ctx context.Context) (LoanCounts, error) {
	stmt := r.builder.
		From(tableLoans).
		Select(goqu.C("status"), goqu.COUNT("*").As("total")).
		GroupBy(goqu.C("status"))

	var rows []struct {
		Status string `db:"status"`
		Total  int64  `db:"total"`
	}
	if err := r.selectAll(ctx, stmt, &rows); err != nil {
		return LoanCounts{}, err
	}

	var counts LoanCounts
	for _, row := range rows {
		switch entities.LoanStatus(row.Status) {
		case entities.LoanStatusActive:
			counts.Active = row.Total
		case entities.LoanStatusReturned:
			counts.Returned = row.Total
		case entities.LoanStatusOverdue:
			counts.Overdue = row.Total
		}
		counts.Total += row.Total
	}
	return counts, nil
}

func (r *Repository) StockSummary(ctx context.Context) (StockSummary, error) {
	stmt := r.builder.
		From(tableBooks).
		Select(
			goqu.COUNT("*").As("titles"),
			goqu.COALESCE(goqu.SUM("total_copies"), 0).As("copies"),
			goqu.COALESCE(goqu.SUM("stock"), 0).As("on_shelf"),
			goqu.COALESCE(goqu.SUM(goqu.Case().When(goqu.C("stock").Eq(0), 1).Else(0)), 0).As("unavailable"),
		)

	query, args, err := stmt.Prepared(true).ToSQL()
	if err != nil {
		return StockSummary{}, errors.Join(ErrBuildingQuery, err)
	}

	var s StockSummary
	if err := r.db.GetContext(ctx, &s, query, args...); err != nil {
		return StockSummary{}, fmt.Errorf("stock summary: %w", err)
	}
	s.OnLoan = s.Copies - s.OnShelf
	return s, nil
}

// MostBorrowed ranks books by how many loans they have had, in any state.
func (r *Repository) MostBorrowed(ctx context.Context, limit uint) ([]BorrowedBook, error) {
	if limit == 0 {
		limit = DefaultTopLimit
	}

	stmt := r.builder.
		From(goqu.T(tableLoans)).
		Join(goqu.T(tableBooks), goqu.On(goqu.I("books.id").Eq(goqu.I("loans.book_id")))).
		Select(
			goqu.I("books.id").As("book_id"),
			goqu.I("books.title").As("title"),
			goqu.I("books.isbn").As("isbn"),
			goqu.COUNT(goqu.I("loans.id")).As("loan_count"),
		).
		GroupBy(goqu.I("books.id"), goqu.I("books.title"), goqu.I("books.isbn")).
		Order(goqu.C("loan_count").Desc(), goqu.I("books.title").Asc()).
		Limit(limit)

	books := []BorrowedBook{}
	if err := r.selectAll(ctx, stmt, &books); err != nil {
		return nil, err
	}
	return books, nil
}

// OverdueLoans lists open loans due before the day of now, oldest first.
func (r *Repository) OverdueLoans(ctx context.Context, now time.Time) ([]OverdueLoan, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	stmt := r.builder.
		From(goqu.T(tableLoans)).
		Join(goqu.T(tableBooks), goqu.On(goqu.I("books.id").Eq(goqu.I("loans.book_id")))).
		Join(goqu.T(tableUsers), goqu.On(goqu.I("users.id").Eq(goqu.I("loans.borrower_id")))).
		Select(
			goqu.I("loans.id").As("loan_id"),
			goqu.I("loans.reference").As("reference"),
			goqu.I("books.title").As("title"),
			goqu.I("users.username").As("username"),
			goqu.I("users.first_name").As("first_name"),
			goqu.I("users.last_name").As("last_name"),
			goqu.I("loans.due_date").As("due_date"),
		).
		Where(
			goqu.I("loans.status").In(openStatuses),
			goqu.I("loans.due_date").Lt(today),
		).
		Order(goqu.I("loans.due_date").Asc(), goqu.I("loans.id").Asc())

	loans := []OverdueLoan{}
	if err := r.selectAll(ctx, stmt, &loans); err != nil {
		return nil, err
	}
	for i := range loans {
		loans[i].DaysLate = int(today.Sub(loans[i].DueDate.UTC()).Hours() / 24)
	}
	return loans, nil
}

// Summary gathers every report for the statistics endpoint.
func (r *Repository) Summary(ctx context.Context, now time.Time) (*Summary, error) {
	var (
		s   Summary
		err error
	)
	if s.Loans, err = r.LoanCounts(ctx); err != nil {
		return nil, err
	}
	if s.Stock, err = r.StockSummary(ctx); err != nil {
		return nil, err
	}
	if s.TopBorrowed, err = r.MostBorrowed(ctx, DefaultTopLimit); err != nil {
		return nil, err
	}
	if s.Overdue, err = r.OverdueLoans(ctx, now); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repository) selectAll(ctx context.Context, stmt *goqu.SelectDataset, dest any) error {
	query, args, err := stmt.Prepared(true).ToSQL()
	if err != nil {
		return errors.Join(ErrBuildingQuery, err)
	}
	if err := r.db.SelectContext(ctx, dest, query, args...); err != nil {
		return fmt.Errorf("report query: %w", err)
	}
	return nil
}
