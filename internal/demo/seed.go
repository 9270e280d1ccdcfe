package demo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/biblioteca/internal/auth"
	"github.com/mrlokans/biblioteca/internal/circulation"
	"github.com/mrlokans/biblioteca/internal/database"
	"github.com/mrlokans/biblioteca/internal/database/authors"
	"github.com/mrlokans/biblioteca/internal/database/books"
	"github.com/mrlokans/biblioteca/internal/database/categories"
	"github.com/mrlokans/biblioteca/internal/database/clients"
	"github.com/mrlokans/biblioteca/internal/database/loans"
	"github.com/mrlokans/biblioteca/internal/database/users"
	"github.com/mrlokans/biblioteca/internal/entities"
)

const (
	AdminUsername  = "admin"
	AdminPassword  = "admin123"
	MemberPassword = "user123"
)

type seedUser struct {
	username string
	email    string
	first    string
	last     string
	role     entities.UserRole
	password string
}

var seedUsers = []seedUser{
	{AdminUsername, "admin@biblioteca.com", "Administrador", "Sistema", entities.UserRoleAdmin, AdminPassword},
	{"juan_perez", "juan@email.com", "Juan", "Pérez", entities.UserRoleMember, MemberPassword},
	{"maria_lopez", "maria@email.com", "María", "López", entities.UserRoleMember, MemberPassword},
	{"carlos_ruiz", "carlos@email.com", "Carlos", "Ruiz", entities.UserRoleMember, MemberPassword},
}

var seedAuthors = []entities.Author{
	{
		FirstName:   "Gabriel",
		LastName:    "García Márquez",
		BirthDate:   "1927-03-06",
		Nationality: "Colombiano",
		Biography:   "Premio Nobel de Literatura 1982. Autor de Cien años de soledad.",
	},
	{
		FirstName:   "Isabel",
		LastName:    "Allende",
		BirthDate:   "1942-08-02",
		Nationality: "Chilena",
		Biography:   "Una de las novelistas más leídas en español. Autora de La casa de los espíritus.",
	},
	{
		FirstName:   "Jorge Luis",
		LastName:    "Borges",
		BirthDate:   "1899-08-24",
		Nationality: "Argentino",
		Biography:   "Uno de los escritores más importantes del siglo XX en lengua española.",
	},
	{
		FirstName:   "Octavio",
		LastName:    "Paz",
		BirthDate:   "1914-03-31",
		Nationality: "Mexicano",
		Biography:   "Premio Nobel de Literatura 1990. Ensayista y poeta mexicano.",
	},
	{
		FirstName:   "Mario",
		LastName:    "Vargas Llosa",
		BirthDate:   "1936-03-28",
		Nationality: "Peruano",
		Biography:   "Premio Nobel de Literatura 2010. Autor de La ciudad y los perros.",
	},
}

var seedCategories = []entities.Category{
	{Name: "Ficción", Description: "Novelas y cuentos de ficción literaria"},
	{Name: "Fantasía", Description: "Literatura fantástica y de mundos imaginarios"},
	{Name: "Ciencia Ficción", Description: "Narrativa especulativa y futurista"},
	{Name: "Romance", Description: "Novelas románticas y de amor"},
	{Name: "Misterio", Description: "Novelas policiacas y de suspenso"},
	{Name: "Ensayo", Description: "Ensayos literarios y filosóficos"},
}

type seedBook struct {
	book     entities.Book
	author   string // last name
	category string
}

var seedBooks = []seedBook{
	{
		book: entities.Book{
			Title:           "Cien años de soledad",
			ISBN:            "9780307474728",
			Publisher:       "Editorial Sudamericana",
			PublicationDate: "1967-05-30",
			Pages:           471,
			Language:        "Español",
			Description:     "Obra maestra del realismo mágico.",
			Stock:           5,
			Price:           "350.00",
			Rating:          "5.00",
		},
		author:   "García Márquez",
		category: "Ficción",
	},
	{
		book: entities.Book{
			Title:           "La casa de los espíritus",
			ISBN:            "9788401242281",
			Publisher:       "Planeta",
			PublicationDate: "1982-01-01",
			Pages:           433,
			Language:        "Español",
			Description:     "Saga familiar chilena que mezcla lo cotidiano con lo maravilloso.",
			Stock:           4,
			Price:           "280.50",
			Rating:          "4.80",
		},
		author:   "Allende",
		category: "Ficción",
	},
	{
		book: entities.Book{
			Title:           "Ficciones",
			ISBN:            "9780802130303",
			Publisher:       "Editorial Sudamericana",
			PublicationDate: "1944-01-01",
			Pages:           174,
			Language:        "Español",
			Description:     "Colección de cuentos que explora temas filosóficos y metafísicos.",
			Stock:           3,
			Price:           "220.00",
			Rating:          "4.90",
		},
		author:   "Borges",
		category: "Ficción",
	},
	{
		book: entities.Book{
			Title:           "El laberinto de la soledad",
			ISBN:            "9786071613578",
			Publisher:       "Fondo de Cultura Económica",
			PublicationDate: "1950-01-01",
			Pages:           191,
			Language:        "Español",
			Description:     "Ensayo sobre la identidad mexicana.",
			Stock:           2,
			Price:           "180.25",
			Rating:          "4.50",
		},
		author:   "Paz",
		category: "Ensayo",
	},
	{
		book: entities.Book{
			Title:           "La ciudad y los perros",
			ISBN:            "9788420412146",
			Publisher:       "Alfaguara",
			PublicationDate: "1963-01-01",
			Pages:           399,
			Language:        "Español",
			Description:     "Novela ambientada en un colegio militar de Lima.",
			Stock:           4,
			Price:           "310.00",
			Rating:          "4.70",
		},
		author:   "Vargas Llosa",
		category: "Ficción",
	},
}

type seedLoan struct {
	isbn     string
	borrower string
	days     int
}

var seedLoans = []seedLoan{
	{"9780307474728", "juan_perez", 14},
	{"9780802130303", "maria_lopez", 7},
}

// SeedOptions configures the OAuth application created by Seed.
type SeedOptions struct {
	BcryptCost   int
	ClientID     string
	ClientName   string
	ClientSecret string // generated when empty
}

// SeedResult counts what Seed created. ClientSecret is set only when the
// application was created by this run.
type SeedResult struct {
	Users        int
	Authors      int
	Categories   int
	Books        int
	Loans        int
	ClientID     string
	ClientSecret string
}

// Seeder fills a database with sample library data. Running it twice leaves
// the data unchanged.
type Seeder struct {
	db          *gorm.DB
	circulation *circulation.Service
	users       *users.Repository
	authors     *authors.Repository
	categories  *categories.Repository
	books       *books.Repository
	loans       *loans.Repository
	clients     *clients.Repository
	now         func() time.Time
}

func NewSeeder(db *gorm.DB, circ *circulation.Service) *Seeder {
	return &Seeder{
		db:          db,
		circulation: circ,
		users:       users.NewRepository(db),
		authors:     authors.NewRepository(db),
		categories:  categories.NewRepository(db),
		books:       books.NewRepository(db),
		loans:       loans.NewRepository(db),
		clients:     clients.NewRepository(db),
		now:         time.Now,
	}
}

func (s *Seeder) Seed(ctx context.Context, opts SeedOptions) (*SeedResult, error) {
	res := &SeedResult{ClientID: opts.ClientID}

	userIDs := make(map[string]uint, len(seedUsers))
	for _, su := range seedUsers {
		id, created, err := s.ensureUser(su, opts.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("seed user %s: %w", su.username, err)
		}
		userIDs[su.username] = id
		if created {
			res.Users++
			log.Printf("[DEMO] User '%s' created", su.username)
		}
	}

	authorIDs := make(map[string]uint, len(seedAuthors))
	for _, a := range seedAuthors {
		existing, err := s.authors.GetByName(a.FirstName, a.LastName)
		if errors.Is(err, database.ErrNotFound) {
			author := a
			if err := s.authors.Create(&author); err != nil {
				return nil, fmt.Errorf("seed author %s: %w", a.FullName(), err)
			}
			existing = &author
			res.Authors++
		} else if err != nil {
			return nil, err
		}
		authorIDs[a.LastName] = existing.ID
	}

	categoryIDs := make(map[string]uint, len(seedCategories))
	for _, c := range seedCategories {
		existing, err := s.categories.GetByName(c.Name)
		if errors.Is(err, database.ErrNotFound) {
			category := c
			if err := s.categories.Create(&category); err != nil {
				return nil, fmt.Errorf("seed category %s: %w", c.Name, err)
			}
			existing = &category
			res.Categories++
		} else if err != nil {
			return nil, err
		}
		categoryIDs[c.Name] = existing.ID
	}

	adminID := userIDs[AdminUsername]
	bookIDs := make(map[string]uint, len(seedBooks))
	for _, sb := range seedBooks {
		existing, err := s.books.GetBookByISBN(sb.book.ISBN)
		if errors.Is(err, database.ErrNotFound) {
			book := sb.book
			authorID, categoryID := authorIDs[sb.author], categoryIDs[sb.category]
			book.AuthorID = &authorID
			book.CategoryID = &categoryID
			book.CreatedByID = &adminID
			if err := s.books.Create(&book); err != nil {
				return nil, fmt.Errorf("seed book %s: %w", sb.book.Title, err)
			}
			existing = &book
			res.Books++
			log.Printf("[DEMO] Book '%s' created", book.Title)
		} else if err != nil {
			return nil, err
		}
		bookIDs[sb.book.ISBN] = existing.ID
	}

	for _, sl := range seedLoans {
		bookID, borrowerID := bookIDs[sl.isbn], userIDs[sl.borrower]
		open, err := s.loans.HasOpenLoan(bookID, borrowerID)
		if err != nil {
			return nil, err
		}
		if open {
			continue
		}
		due := circulation.DateOf(s.now()).AddDate(0, 0, sl.days)
		_, err = s.circulation.CheckOut(ctx, circulation.CheckOutRequest{
			BookID:     bookID,
			BorrowerID: borrowerID,
			DueDate:    &due,
			ActorID:    adminID,
		})
		if err != nil {
			return nil, fmt.Errorf("seed loan of %s to %s: %w", sl.isbn, sl.borrower, err)
		}
		res.Loans++
	}

	if opts.ClientID != "" {
		secret, err := s.ensureClient(opts, adminID)
		if err != nil {
			return nil, fmt.Errorf("seed oauth application: %w", err)
		}
		res.ClientSecret = secret
	}
	return res, nil
}

func (s *Seeder) ensureUser(su seedUser, cost int) (uint, bool, error) {
	existing, err := s.users.GetUserByUsername(su.username)
	if err == nil {
		return existing.ID, false, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return 0, false, err
	}

	// sample passwords are shorter than the policy allows
	hash, err := auth.HashPassword(su.password, cost)
	if err != nil {
		return 0, false, err
	}
	user := &entities.User{
		Username:     su.username,
		Email:        su.email,
		FirstName:    su.first,
		LastName:     su.last,
		PasswordHash: hash,
		Role:         su.role,
	}
	if err := s.users.CreateUser(user); err != nil {
		return 0, false, err
	}
	return user.ID, true, nil
}

func (s *Seeder) ensureClient(opts SeedOptions, ownerID uint) (string, error) {
	if _, err := s.clients.GetApplication(opts.ClientID); err == nil {
		return "", nil
	} else if !errors.Is(err, database.ErrNotFound) {
		return "", err
	}

	secret := opts.ClientSecret
	if secret == "" {
		var err error
		if secret, err = auth.GenerateClientSecret(); err != nil {
			return "", err
		}
	}
	hash, err := auth.HashPassword(secret, opts.BcryptCost)
	if err != nil {
		return "", err
	}
	name := opts.ClientName
	if name == "" {
		name = opts.ClientID
	}
	app := &entities.OAuthApplication{
		ClientID:   opts.ClientID,
		SecretHash: hash,
		Name:       name,
		Scopes:     entities.ScopeRead + " " + entities.ScopeWrite,
		OwnerID:    &ownerID,
	}
	if err := s.clients.CreateApplication(app); err != nil {
		return "", err
	}
	return secret, nil
}

// Reset deletes all library data and seeds it again. The demo server runs
// it periodically so visitors always start from the same state.
func (s *Seeder) Reset(ctx context.Context, opts SeedOptions) (*SeedResult, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&entities.Loan{}, &entities.Book{}, &entities.Author{}, &entities.Category{},
			&entities.RefreshToken{}, &entities.OAuthApplication{}, &entities.AuditEvent{},
		} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Unscoped().Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&entities.User{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("reset demo data: %w", err)
	}
	return s.Seed(ctx, opts)
}
