package demo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/biblioteca/internal/auth"
	"github.com/mrlokans/biblioteca/internal/circulation"
	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/database/dbtest"
	"github.com/mrlokans/biblioteca/internal/entities"
	"github.com/mrlokans/biblioteca/internal/inventory"
)

var seedNow = time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

func newTestSeeder(t *testing.T) (*Seeder, *database.Database) {
	t.Helper()
	db := dbtest.Open(t)
	clock := func() time.Time { return seedNow }
	circ := circulation.NewService(db.DB, inventory.NewLedger(), circulation.WithClock(clock))
	s := NewSeeder(db.DB, circ)
	s.now = clock
	return s, db
}

var testSeedOptions = SeedOptions{BcryptCost: 4, ClientID: "biblioteca-cli", ClientName: "Biblioteca CLI"}

func TestSeed_CreatesSampleLibrary(t *testing.T) {
	s, db := newTestSeeder(t)

	res, err := s.Seed(context.Background(), testSeedOptions)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Users)
	assert.Equal(t, 5, res.Authors)
	assert.Equal(t, 6, res.Categories)
	assert.Equal(t, 5, res.Books)
	assert.Equal(t, 2, res.Loans)
	assert.NotEmpty(t, res.ClientSecret)

	var cien entities.Book
	require.NoError(t, db.DB.Preload("Author").Preload("Category").Where("isbn = ?", "9780307474728").First(&cien).Error)
	assert.Equal(t, 4, cien.Stock)
	assert.Equal(t, 5, cien.TotalCopies)
	assert.Equal(t, "350.00", cien.Price)
	assert.Equal(t, "García Márquez", cien.Author.LastName)
	assert.Equal(t, "Ficción", cien.Category.Name)
	assert.Equal(t, entities.BookStatusAvailable, cien.Status)

	var loans []entities.Loan
	require.NoError(t, db.DB.Preload("Borrower").Order("id").Find(&loans).Error)
	require.Len(t, loans, 2)
	assert.Equal(t, "juan_perez", loans[0].Borrower.Username)
	assert.Equal(t, entities.LoanStatusActive, loans[0].Status)
	assert.Equal(t, "2026-10-30", loans[0].DueDate.Format("2006-01-02"))
	assert.Equal(t, "2026-10-23", loans[1].DueDate.Format("2006-01-02"))

	var admin entities.User
	require.NoError(t, db.DB.Where("username = ?", AdminUsername).First(&admin).Error)
	assert.Equal(t, entities.UserRoleAdmin, admin.Role)
	assert.NoError(t, auth.CheckPassword(AdminPassword, admin.PasswordHash))

	var app entities.OAuthApplication
	require.NoError(t, db.DB.Where("client_id = ?", "biblioteca-cli").First(&app).Error)
	assert.NoError(t, auth.CheckPassword(res.ClientSecret, app.SecretHash))
	assert.Equal(t, []string{"read", "write"}, app.AllowedScopes())
}

func TestSeed_IsIdempotent(t *testing.T) {
	s, db := newTestSeeder(t)

	_, err := s.Seed(context.Background(), testSeedOptions)
	require.NoError(t, err)

	res, err := s.Seed(context.Background(), testSeedOptions)
	require.NoError(t, err)
	assert.Equal(t, &SeedResult{ClientID: "biblioteca-cli"}, res)

	var count int64
	db.DB.Model(&entities.Loan{}).Count(&count)
	assert.Equal(t, int64(2), count)

	var ficciones entities.Book
	require.NoError(t, db.DB.Where("isbn = ?", "9780802130303").First(&ficciones).Error)
	assert.Equal(t, 2, ficciones.Stock, "a second run must not lend the book again")
}

func TestSeed_FixedClientSecret(t *testing.T) {
	s, _ := newTestSeeder(t)

	opts := testSeedOptions
	opts.ClientSecret = "s3cret-for-tests"
	res, err := s.Seed(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-for-tests", res.ClientSecret)
}

func TestReset_RestoresInitialState(t *testing.T) {
	s, db := newTestSeeder(t)
	ctx := context.Background()

	_, err := s.Seed(ctx, testSeedOptions)
	require.NoError(t, err)

	var loan entities.Loan
	require.NoError(t, db.DB.First(&loan).Error)
	_, err = s.circulation.Return(ctx, loan.ID, 0)
	require.NoError(t, err)
	require.NoError(t, db.DB.Create(&entities.Category{Name: "Poesía"}).Error)

	res, err := s.Reset(ctx, testSeedOptions)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Users)
	assert.Equal(t, 5, res.Books)
	assert.Equal(t, 2, res.Loans)

	var categories, openLoans int64
	db.DB.Model(&entities.Category{}).Count(&categories)
	db.DB.Model(&entities.Loan{}).Where("status = ?", entities.LoanStatusActive).Count(&openLoans)
	assert.Equal(t, int64(6), categories)
	assert.Equal(t, int64(2), openLoans)
}
