package library

import (
	"errors"
	"fmt"
	"strings"
)

const maxTextLength = 190

var (
	// ErrInvalidTitle indicates that a book title is empty or exceeds storage bounds.
	ErrInvalidTitle = errors.New("library: invalid title")
	// ErrInvalidName indicates that an author name is empty or exceeds storage bounds.
	ErrInvalidName = errors.New("library: invalid name")
	// ErrInvalidLabel indicates that a tag label is empty or exceeds storage bounds.
	ErrInvalidLabel = errors.New("library: invalid label")
	// ErrAuthorNotFound indicates that no author has the requested identifier.
	ErrAuthorNotFound = errors.New("library: author not found")
	// ErrBookNotFound indicates that no book has the requested identifier.
	ErrBookNotFound = errors.New("library: book not found")
)

// Author writes books.
type Author struct {
	ID               string `gorm:"column:id;primaryKey;size:190;not null" validate:"required,max=190"`
	Name             string `gorm:"column:name;size:190;not null" validate:"required,max=190"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null" validate:"gt=0"`

	Books []*Book `gorm:"-" validate:"-"`
}

// TableName provides the explicit table binding for GORM.
func (Author) TableName() string {
	return "authors"
}

// Book belongs to one author and carries tags through BookTag join records.
type Book struct {
	ID            string  `gorm:"column:id;primaryKey;size:190;not null" validate:"required,max=190"`
	AuthorID      string  `gorm:"column:author_id;size:190;not null;index" validate:"required"`
	Title         string  `gorm:"column:title;size:190;not null" validate:"required,max=190"`
	PublishedYear int16   `gorm:"column:published_year;not null;default:0" validate:"gte=0,lte=3000"`
	Price         float64 `gorm:"column:price;not null;default:0" validate:"gte=0"`
	Available     bool    `gorm:"column:available;not null;default:true"`

	Author *Author    `gorm:"-" validate:"-"`
	Tags   []*BookTag `gorm:"-" validate:"-"`
}

// TableName provides the explicit table binding for GORM.
func (Book) TableName() string {
	return "books"
}

// Tag is a free-form label shared by many books.
type Tag struct {
	ID    string `gorm:"column:id;primaryKey;size:190;not null" validate:"required"`
	Label string `gorm:"column:label;size:190;not null;uniqueIndex" validate:"required,max=190,lowercase"`

	Books []*BookTag `gorm:"-" validate:"-"`
}

// TableName provides the explicit table binding for GORM.
func (Tag) TableName() string {
	return "tags"
}

// BookTag joins books and tags; its composite key makes Book.Tags and
// Tag.Books many-to-many edges.
type BookTag struct {
	BookID          string `gorm:"column:book_id;primaryKey;size:190;not null" validate:"required"`
	TagID           string `gorm:"column:tag_id;primaryKey;size:190;not null" validate:"required"`
	TaggedAtSeconds int64  `gorm:"column:tagged_at_s;not null" validate:"gt=0"`

	Book *Book `gorm:"-" validate:"-"`
	Tag  *Tag  `gorm:"-" validate:"-"`
}

// TableName provides the explicit table binding for GORM.
func (BookTag) TableName() string {
	return "book_tags"
}

func normalizeText(raw string, sentinel error) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", sentinel)
	}
	if len(trimmed) > maxTextLength {
		return "", fmt.Errorf("%w: exceeds %d characters", sentinel, maxTextLength)
	}
	return trimmed, nil
}

// NormalizeLabel trims and lowercases a tag label.
func NormalizeLabel(raw string) (string, error) {
	label, err := normalizeText(raw, ErrInvalidLabel)
	if err != nil {
		return "", err
	}
	return strings.ToLower(label), nil
}
