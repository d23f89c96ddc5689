package library

import "github.com/MarcoPoloResearchLab/snaporm/internal/orm"

const (
	entityAuthor  = "Author"
	entityBook    = "Book"
	entityTag     = "Tag"
	entityBookTag = "BookTag"
)

// Catalog holds the orm registrations of the library entities.
type Catalog struct {
	Authors  *orm.Schema[Author]
	Books    *orm.Schema[Book]
	Tags     *orm.Schema[Tag]
	BookTags *orm.Schema[BookTag]
	Model    *orm.Model
}

// NewCatalog registers the library entities and their navigation edges.
func NewCatalog() (*Catalog, error) {
	authors := orm.NewSchema(entityAuthor, []orm.Field[Author]{
		orm.Column("ID", func(a *Author) *string { return &a.ID }, orm.PrimaryKey()),
		orm.Column("Name", func(a *Author) *string { return &a.Name }),
		orm.Column("CreatedAtSeconds", func(a *Author) *int64 { return &a.CreatedAtSeconds }, orm.ColumnName("created_at_s")),
	})
	books := orm.NewSchema(entityBook, []orm.Field[Book]{
		orm.Column("ID", func(b *Book) *string { return &b.ID }, orm.PrimaryKey()),
		orm.Column("AuthorID", func(b *Book) *string { return &b.AuthorID }),
		orm.Column("Title", func(b *Book) *string { return &b.Title }),
		orm.Column("PublishedYear", func(b *Book) *int16 { return &b.PublishedYear }),
		orm.Column("Price", func(b *Book) *float64 { return &b.Price }),
		orm.Column("Available", func(b *Book) *bool { return &b.Available }),
	})
	tags := orm.NewSchema(entityTag, []orm.Field[Tag]{
		orm.Column("ID", func(t *Tag) *string { return &t.ID }, orm.PrimaryKey()),
		orm.Column("Label", func(t *Tag) *string { return &t.Label }),
	})
	bookTags := orm.NewSchema(entityBookTag, []orm.Field[BookTag]{
		orm.Column("BookID", func(bt *BookTag) *string { return &bt.BookID }, orm.PrimaryKey()),
		orm.Column("TagID", func(bt *BookTag) *string { return &bt.TagID }, orm.PrimaryKey()),
		orm.Column("TaggedAtSeconds", func(bt *BookTag) *int64 { return &bt.TaggedAtSeconds }, orm.ColumnName("tagged_at_s")),
	})

	orm.BelongsTo(books, "AuthorID", authors, func(b *Book, a *Author) { b.Author = a })
	orm.BelongsTo(bookTags, "BookID", books, func(bt *BookTag, b *Book) { bt.Book = b })
	orm.BelongsTo(bookTags, "TagID", tags, func(bt *BookTag, t *Tag) { bt.Tag = t })
	orm.HasMany(authors, "Books", books, func(a *Author, members []*Book) { a.Books = members })
	orm.HasMany(books, "Tags", bookTags, func(b *Book, members []*BookTag) { b.Tags = members })
	orm.HasMany(tags, "Books", bookTags, func(t *Tag, members []*BookTag) { t.Books = members })

	model, err := orm.NewModel(orm.ScalarKinds, authors, books, tags, bookTags)
	if err != nil {
		return nil, err
	}
	return &Catalog{
		Authors:  authors,
		Books:    books,
		Tags:     tags,
		BookTags: bookTags,
		Model:    model,
	}, nil
}

// Models returns the gorm models backing the catalog tables.
func Models() []any {
	return []any{&Author{}, &Book{}, &Tag{}, &BookTag{}}
}
