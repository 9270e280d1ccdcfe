package loans

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/database/dbtest"
	"github.com/mrlokans/biblioteca/internal/entities"
)

func TestRepository_Lifecycle(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db.DB)
	book := dbtest.Book(t, db.DB, "9780307474728", 4, 5)
	juan := dbtest.User(t, db.DB, "juan_perez", entities.UserRoleMember)

	now := time.Now().UTC()
	loan := &entities.Loan{
		Reference:  "5f0c6f5e-0000-4000-8000-000000000001",
		BookID:     book.ID,
		BorrowerID: juan.ID,
		LoanedAt:   now,
		DueDate:    now.AddDate(0, 0, 14),
		Status:     entities.LoanStatusActive,
	}
	require.NoError(t, repo.Create(loan))

	open, err := repo.HasOpenLoan(book.ID, juan.ID)
	require.NoError(t, err)
	assert.True(t, open)

	got, err := repo.GetByReference(loan.Reference)
	require.NoError(t, err)
	require.NotNil(t, got.Book)
	require.NotNil(t, got.Borrower)
	assert.Equal(t, "juan_perez", got.Borrower.Username)

	closed, err := repo.Close(loan.ID, now)
	require.NoError(t, err)
	assert.True(t, closed)

	closed, err = repo.Close(loan.ID, now)
	require.NoError(t, err)
	assert.False(t, closed, "second close must not match")

	deleted, err := repo.DeleteOpen(loan.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "returned loans are not cancellable")

	_, err = repo.GetByID(9999)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestRepository_MarkOverdueAndList(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db.DB)
	book := dbtest.Book(t, db.DB, "9780802130303", 1, 3)
	maria := dbtest.User(t, db.DB, "maria_lopez", entities.UserRoleMember)
	carlos := dbtest.User(t, db.DB, "carlos_ruiz", entities.UserRoleMember)

	today := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	late := &entities.Loan{Reference: "late", BookID: book.ID, BorrowerID: maria.ID, LoanedAt: today.AddDate(0, 0, -20), DueDate: today.AddDate(0, 0, -6), Status: entities.LoanStatusActive}
	onTime := &entities.Loan{Reference: "on-time", BookID: book.ID, BorrowerID: carlos.ID, LoanedAt: today.AddDate(0, 0, -1), DueDate: today.AddDate(0, 0, 13), Status: entities.LoanStatusActive}
	require.NoError(t, repo.Create(late))
	require.NoError(t, repo.Create(onTime))

	n, err := repo.MarkOverdue(today)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	page, err := repo.List(database.ListOptions{Filters: map[string]string{"estado": string(entities.LoanStatusOverdue)}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "late", page.Items[0].Reference)

	page, err = repo.List(database.ListOptions{Search: "carlos"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "on-time", page.Items[0].Reference)

	openLoans, err := repo.ListOpen()
	require.NoError(t, err)
	assert.Len(t, openLoans, 2)
}
