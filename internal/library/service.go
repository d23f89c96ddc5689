package library

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/snaporm/internal/database"
	"github.com/MarcoPoloResearchLab/snaporm/internal/orm"
	"github.com/MarcoPoloResearchLab/snaporm/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew    = "library.service.new"
	opSeed          = "library.seed"
	opListAuthors   = "library.list_authors"
	opCreateAuthor  = "library.create_author"
	opAddBook       = "library.add_book"
	opRenameBook    = "library.rename_book"
	opTagBook       = "library.tag_book"
	opDeleteBook    = "library.delete_book"
	reasonOpen      = "context_open_failed"
	reasonSave      = "save_failed"
	reasonIDFailure = "id_generation_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Validator  orm.Validator
	Logger     *zap.Logger
}

// Service runs library use cases. Each call loads the whole catalog into a
// fresh orm context, mutates the tracked sets and saves them in one
// transaction. Calls are serialized.
type Service struct {
	mu         sync.Mutex
	catalog    *Catalog
	gateway    orm.Gateway
	validator  orm.Validator
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	validator := cfg.Validator
	if validator == nil {
		validator = validation.NewStructValidator()
	}

	catalog, err := NewCatalog()
	if err != nil {
		return nil, newServiceError(opServiceNew, "catalog_invalid", err)
	}

	gateway, err := database.NewGateway(cfg.Database, logger)
	if err != nil {
		return nil, newServiceError(opServiceNew, "gateway_failed", err)
	}

	return &Service{
		catalog:    catalog,
		gateway:    gateway,
		validator:  validator,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Catalog exposes the orm registrations backing the service.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// AuthorView is an author with the books reached through its navigation edges.
type AuthorView struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	Books     []BookView `json:"books"`
}

// BookView is a book with its tag labels sorted alphabetically.
type BookView struct {
	ID            string   `json:"id"`
	AuthorID      string   `json:"author_id"`
	Title         string   `json:"title"`
	PublishedYear int16    `json:"published_year"`
	Price         float64  `json:"price"`
	Available     bool     `json:"available"`
	Tags          []string `json:"tags"`
}

// NewBook describes a book to add to an author.
type NewBook struct {
	Title         string  `json:"title"`
	PublishedYear int16   `json:"published_year"`
	Price         float64 `json:"price"`
}

// SeedAuthor is one author of a seed catalog together with its books and tags.
type SeedAuthor struct {
	Name  string
	Books []SeedBook
}

// SeedBook is one book of a seed catalog.
type SeedBook struct {
	Title         string
	PublishedYear int16
	Price         float64
	Tags          []string
}

// DefaultSeed is the catalog loaded by `snaporm seed`.
func DefaultSeed() []SeedAuthor {
	return []SeedAuthor{
		{Name: "Ursula K. Le Guin", Books: []SeedBook{
			{Title: "The Left Hand of Darkness", PublishedYear: 1969, Price: 12.5, Tags: []string{"Science Fiction", "classic"}},
			{Title: "A Wizard of Earthsea", PublishedYear: 1968, Price: 9.99, Tags: []string{"fantasy", "classic"}},
		}},
		{Name: "Stanisław Lem", Books: []SeedBook{
			{Title: "Solaris", PublishedYear: 1961, Price: 11, Tags: []string{"science fiction"}},
		}},
	}
}

// unit is one open orm context with typed access to every library set.
type unit struct {
	dbContext *orm.Context
	authors   *orm.Set[Author]
	books     *orm.Set[Book]
	tags      *orm.Set[Tag]
	bookTags  *orm.Set[BookTag]
}

// run opens a context, hands it to fn and saves the result when persist is set.
// Errors returned by fn are passed through unchanged.
func (s *Service) run(ctx context.Context, operation string, persist bool, fn func(*unit) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dbContext, err := orm.Open(ctx, orm.Config{
		Model:     s.catalog.Model,
		Gateway:   s.gateway,
		Validator: s.validator,
		Logger:    s.logger,
	})
	if err != nil {
		s.logError(operation, reasonOpen, err)
		return newServiceError(operation, reasonOpen, err)
	}

	work := &unit{dbContext: dbContext}
	if work.authors, err = orm.SetOf(dbContext, s.catalog.Authors); err == nil {
		if work.books, err = orm.SetOf(dbContext, s.catalog.Books); err == nil {
			if work.tags, err = orm.SetOf(dbContext, s.catalog.Tags); err == nil {
				work.bookTags, err = orm.SetOf(dbContext, s.catalog.BookTags)
			}
		}
	}
	if err != nil {
		s.logError(operation, reasonOpen, err)
		return newServiceError(operation, reasonOpen, err)
	}

	if err := fn(work); err != nil {
		return err
	}
	if !persist {
		return nil
	}

	if err := dbContext.Save(ctx); err != nil {
		s.logError(operation, reasonSave, err)
		return newServiceError(operation, reasonSave, err)
	}
	return nil
}

// Seed inserts catalog entries whose author names are not stored yet and
// reports the pending changes that were saved.
func (s *Service) Seed(ctx context.Context, seed []SeedAuthor) ([]orm.ChangeCount, error) {
	var counts []orm.ChangeCount
	err := s.run(ctx, opSeed, true, func(work *unit) error {
		known := make(map[string]bool, work.authors.Len())
		for _, author := range work.authors.Items() {
			known[author.Name] = true
		}
		now := s.clock().UTC().Unix()
		for _, entry := range seed {
			name, err := normalizeText(entry.Name, ErrInvalidName)
			if err != nil {
				return newServiceError(opSeed, "invalid_name", err)
			}
			if known[name] {
				continue
			}
			known[name] = true
			author, err := s.newAuthor(opSeed, name, now)
			if err != nil {
				return err
			}
			work.authors.Add(author)
			for _, seedBook := range entry.Books {
				book, err := s.newBook(opSeed, author.ID, NewBook{
					Title:         seedBook.Title,
					PublishedYear: seedBook.PublishedYear,
					Price:         seedBook.Price,
				})
				if err != nil {
					return err
				}
				work.books.Add(book)
				for _, label := range seedBook.Tags {
					if _, err := s.attachTag(opSeed, work, book.ID, label, now); err != nil {
						return err
					}
				}
			}
		}
		counts = work.dbContext.Changes()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// ListAuthors returns every author with books and tag labels, ordered by name.
func (s *Service) ListAuthors(ctx context.Context) ([]AuthorView, error) {
	var views []AuthorView
	err := s.run(ctx, opListAuthors, false, func(work *unit) error {
		authors := work.authors.Items()
		sort.SliceStable(authors, func(i, j int) bool {
			if authors[i].Name == authors[j].Name {
				return authors[i].ID < authors[j].ID
			}
			return authors[i].Name < authors[j].Name
		})
		views = make([]AuthorView, 0, len(authors))
		for _, author := range authors {
			views = append(views, authorView(author))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// CreateAuthor stores a new author.
func (s *Service) CreateAuthor(ctx context.Context, name string) (AuthorView, error) {
	var view AuthorView
	err := s.run(ctx, opCreateAuthor, true, func(work *unit) error {
		normalized, err := normalizeText(name, ErrInvalidName)
		if err != nil {
			return newServiceError(opCreateAuthor, "invalid_name", err)
		}
		author, err := s.newAuthor(opCreateAuthor, normalized, s.clock().UTC().Unix())
		if err != nil {
			return err
		}
		work.authors.Add(author)
		view = authorView(author)
		return nil
	})
	return view, err
}

// AddBook stores a new book for the author identified by authorID.
func (s *Service) AddBook(ctx context.Context, authorID string, input NewBook) (BookView, error) {
	var view BookView
	err := s.run(ctx, opAddBook, true, func(work *unit) error {
		if _, ok := work.authors.Find(authorID); !ok {
			return newServiceError(opAddBook, "author_not_found", ErrAuthorNotFound)
		}
		book, err := s.newBook(opAddBook, authorID, input)
		if err != nil {
			return err
		}
		work.books.Add(book)
		view = bookView(book)
		return nil
	})
	return view, err
}

// RenameBook changes the title of a stored book.
func (s *Service) RenameBook(ctx context.Context, bookID, title string) (BookView, error) {
	var view BookView
	err := s.run(ctx, opRenameBook, true, func(work *unit) error {
		book, ok := work.books.Find(bookID)
		if !ok {
			return newServiceError(opRenameBook, "book_not_found", ErrBookNotFound)
		}
		normalized, err := normalizeText(title, ErrInvalidTitle)
		if err != nil {
			return newServiceError(opRenameBook, "invalid_title", err)
		}
		book.Title = normalized
		view = bookView(book)
		return nil
	})
	return view, err
}

// TagBook attaches label to a stored book, creating the tag when no book uses
// it yet. Tagging a book twice with the same label changes nothing.
func (s *Service) TagBook(ctx context.Context, bookID, label string) (BookView, error) {
	var view BookView
	err := s.run(ctx, opTagBook, true, func(work *unit) error {
		book, ok := work.books.Find(bookID)
		if !ok {
			return newServiceError(opTagBook, "book_not_found", ErrBookNotFound)
		}
		link, err := s.attachTag(opTagBook, work, book.ID, label, s.clock().UTC().Unix())
		if err != nil {
			return err
		}
		if link != nil {
			book.Tags = append(book.Tags, link)
		}
		view = bookView(book)
		return nil
	})
	return view, err
}

// DeleteBook removes a stored book together with its tag links.
func (s *Service) DeleteBook(ctx context.Context, bookID string) error {
	return s.run(ctx, opDeleteBook, true, func(work *unit) error {
		book, ok := work.books.Find(bookID)
		if !ok {
			return newServiceError(opDeleteBook, "book_not_found", ErrBookNotFound)
		}
		for _, link := range book.Tags {
			work.bookTags.Remove(link)
		}
		work.books.Remove(book)
		return nil
	})
}

func (s *Service) newAuthor(operation, name string, createdAt int64) (*Author, error) {
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(operation, reasonIDFailure, err)
		return nil, newServiceError(operation, reasonIDFailure, err)
	}
	return &Author{ID: id, Name: name, CreatedAtSeconds: createdAt, Books: []*Book{}}, nil
}

func (s *Service) newBook(operation, authorID string, input NewBook) (*Book, error) {
	title, err := normalizeText(input.Title, ErrInvalidTitle)
	if err != nil {
		return nil, newServiceError(operation, "invalid_title", err)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(operation, reasonIDFailure, err)
		return nil, newServiceError(operation, reasonIDFailure, err)
	}
	return &Book{
		ID:            id,
		AuthorID:      authorID,
		Title:         title,
		PublishedYear: input.PublishedYear,
		Price:         input.Price,
		Available:     true,
		Tags:          []*BookTag{},
	}, nil
}

// attachTag stages the join record linking bookID to label. It returns nil
// when the book already carries the label.
func (s *Service) attachTag(operation string, work *unit, bookID, label string, taggedAt int64) (*BookTag, error) {
	normalized, err := NormalizeLabel(label)
	if err != nil {
		return nil, newServiceError(operation, "invalid_label", err)
	}

	var tag *Tag
	for _, candidate := range work.tags.Items() {
		if candidate.Label == normalized {
			tag = candidate
			break
		}
	}
	if tag == nil {
		id, err := s.idProvider.NewID()
		if err != nil {
			s.logError(operation, reasonIDFailure, err)
			return nil, newServiceError(operation, reasonIDFailure, err)
		}
		tag = &Tag{ID: id, Label: normalized}
		work.tags.Add(tag)
	}

	if _, exists := work.bookTags.Find(bookID, tag.ID); exists {
		return nil, nil
	}
	link := &BookTag{BookID: bookID, TagID: tag.ID, TaggedAtSeconds: taggedAt, Tag: tag}
	work.bookTags.Add(link)
	return link, nil
}

func authorView(author *Author) AuthorView {
	books := make([]BookView, 0, len(author.Books))
	for _, book := range author.Books {
		books = append(books, bookView(book))
	}
	sort.SliceStable(books, func(i, j int) bool {
		return books[i].Title < books[j].Title
	})
	return AuthorView{
		ID:        author.ID,
		Name:      author.Name,
		CreatedAt: time.Unix(author.CreatedAtSeconds, 0).UTC(),
		Books:     books,
	}
}

func bookView(book *Book) BookView {
	labels := make([]string, 0, len(book.Tags))
	for _, link := range book.Tags {
		if link.Tag != nil {
			labels = append(labels, link.Tag.Label)
		}
	}
	sort.Strings(labels)
	return BookView{
		ID:            book.ID,
		AuthorID:      book.AuthorID,
		Title:         book.Title,
		PublishedYear: book.PublishedYear,
		Price:         book.Price,
		Available:     book.Available,
		Tags:          labels,
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("library service error", attrs...)
}
