package entities

import "time"

type LoanStatus string

const (
	LoanStatusActive   LoanStatus = "activo"
	LoanStatusReturned LoanStatus = "devuelto"
	LoanStatusOverdue  LoanStatus = "vencido"
)

// Loan records one copy of a book lent to a user. While a loan is active or
// overdue, its copy is counted out of the book's stock.
type Loan struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Reference  string     `gorm:"uniqueIndex;size:36;not null" json:"referencia"`
	BookID     uint       `gorm:"index;not null" json:"libro_id"`
	Book       *Book      `gorm:"foreignKey:BookID" json:"libro,omitempty"`
	BorrowerID uint       `gorm:"index;not null" json:"usuario_id"`
	Borrower   *User      `gorm:"foreignKey:BorrowerID" json:"usuario,omitempty"`
	LoanedAt   time.Time  `gorm:"not null" json:"fecha_prestamo"`
	DueDate    time.Time  `gorm:"index;not null" json:"fecha_devolucion_esperada"`
	ReturnedAt *time.Time `json:"fecha_devolucion,omitempty"`
	Status     LoanStatus `gorm:"size:20;index;not null" json:"estado"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// IsOpen reports whether the loan still holds a copy.
func (l *Loan) IsOpen() bool {
	return l.Status == LoanStatusActive || l.Status == LoanStatusOverdue
}
