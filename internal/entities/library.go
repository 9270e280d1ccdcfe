package entities

import (
	"strings"
	"time"
)

type BookStatus string

const (
	BookStatusAvailable   BookStatus = "disponible"
	BookStatusUnavailable BookStatus = "no_disponible"
)

// StatusForStock derives availability from the number of copies on the shelf.
func StatusForStock(stock int) BookStatus {
	if stock > 0 {
		return BookStatusAvailable
	}
	return BookStatusUnavailable
}

type Author struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	FirstName   string    `gorm:"size:100;not null" json:"nombre"`
	LastName    string    `gorm:"size:100;not null;index" json:"apellido"`
	BirthDate   string    `gorm:"size:10" json:"fecha_nacimiento,omitempty"` // YYYY-MM-DD
	Nationality string    `gorm:"size:100" json:"nacionalidad,omitempty"`
	Biography   string    `gorm:"type:text" json:"biografia,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (a Author) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

type Category struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;size:100;not null" json:"nombre"`
	Description string    `gorm:"type:text" json:"descripcion,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Category) TableName() string {
	return "categories"
}

// Book is a catalog entry. Stock counts the copies currently on the shelf
// and never exceeds TotalCopies; Status mirrors whether stock is positive.
type Book struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Title           string     `gorm:"index;size:512;not null" json:"titulo"`
	ISBN            string     `gorm:"uniqueIndex;size:20;not null" json:"isbn"`
	AuthorID        *uint      `gorm:"index" json:"autor_id"`
	Author          *Author    `gorm:"foreignKey:AuthorID" json:"autor,omitempty"`
	CategoryID      *uint      `gorm:"index" json:"categoria_id"`
	Category        *Category  `gorm:"foreignKey:CategoryID" json:"categoria,omitempty"`
	Publisher       string     `gorm:"size:256" json:"editorial,omitempty"`
	PublicationDate string     `gorm:"size:10;index" json:"fecha_publicacion,omitempty"`
	Pages           int        `json:"paginas,omitempty"`
	Language        string     `gorm:"size:50" json:"idioma,omitempty"`
	Description     string     `gorm:"type:text" json:"descripcion,omitempty"`
	CoverURL        string     `gorm:"size:2048" json:"portada,omitempty"`
	Status          BookStatus `gorm:"size:20;index;not null" json:"estado"`
	Stock           int        `gorm:"not null;default:0" json:"stock"`
	TotalCopies     int        `gorm:"not null;default:0" json:"total_ejemplares"`
	Price           string     `gorm:"size:12" json:"precio,omitempty"`
	Rating          string     `gorm:"size:4" json:"valoracion,omitempty"`
	CreatedByID     *uint      `gorm:"index" json:"creado_por,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// MissingMetadata reports whether any enrichable field is still empty.
func (b *Book) MissingMetadata() bool {
	return b.Publisher == "" || b.Pages == 0 || b.Language == "" ||
		b.Description == "" || b.CoverURL == "" || b.PublicationDate == ""
}
