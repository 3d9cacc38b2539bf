package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/bookwise-api/internal/common"
	dbgen "github.com/noah-isme/bookwise-api/internal/db/gen"
)

type queryProvider interface {
	GetBook(ctx context.Context, id int64) (dbgen.Book, error)
	ListBooks(ctx context.Context, arg dbgen.ListBooksParams) ([]dbgen.Book, error)
	CountBooks(ctx context.Context, arg dbgen.CountBooksParams) (int64, error)
	ListBookCategories(ctx context.Context) ([]dbgen.ListBookCategoriesRow, error)
}

// Service orchestrates book queries, DTO assembly, and caching.
type Service struct {
	queries      queryProvider
	cache        *Cache
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Queries      queryProvider
	Cache        *Cache
	DefaultLimit int
	MaxLimit     int
}

// ListParams captures filters for the book listing.
type ListParams struct {
	Search    string
	Category  string
	MinPrice  decimal.Decimal
	MaxPrice  decimal.Decimal
	MinRating decimal.Decimal
	Sort      string
	Skip      int
	Limit     int
}

// Book is the public book payload.
type Book struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Author      string           `json:"author"`
	Category    string           `json:"category"`
	Price       decimal.Decimal  `json:"price"`
	Rating      decimal.Decimal  `json:"rating"`
	ReviewCount int              `json:"reviewCount"`
	Stock       bool             `json:"stock"`
	WeightKg    *decimal.Decimal `json:"weightKg,omitempty"`
	Image       *string          `json:"image,omitempty"`
	Description *string          `json:"description,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// Category summarises the in-stock books of one category.
type Category struct {
	Name  string `json:"name"`
	Books int64  `json:"books"`
}

// BookListResult contains list data and the total match count.
type BookListResult struct {
	Books []Book `json:"books"`
	Total int64  `json:"total"`
}

var (
	defaultMaxPrice = decimal.NewFromInt(1000)
	validSorts      = map[string]struct{}{"rating": {}, "price": {}, "createdAt": {}}
)

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("catalog: queries provider is required")
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{
		queries:      cfg.Queries,
		cache:        cfg.Cache,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}, nil
}

// ParseListParams normalises raw query values into typed filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{
		Search:   strings.TrimSpace(values.Get("search")),
		Category: strings.TrimSpace(values.Get("category")),
		MinPrice: decimal.Zero,
		MaxPrice: defaultMaxPrice,
		Sort:     "rating",
		Limit:    s.defaultLimit,
	}
	var err error
	if params.MinPrice, err = decimalParam(values, "minPrice", params.MinPrice); err != nil {
		return params, err
	}
	if params.MaxPrice, err = decimalParam(values, "maxPrice", params.MaxPrice); err != nil {
		return params, err
	}
	if params.MinRating, err = decimalParam(values, "minRating", decimal.Zero); err != nil {
		return params, err
	}
	if params.MinPrice.GreaterThan(params.MaxPrice) {
		return params, badRequest("price", "minPrice cannot be greater than maxPrice", fmt.Errorf("invalid price range"))
	}
	if v := strings.TrimSpace(values.Get("sort")); v != "" {
		if _, ok := validSorts[v]; !ok {
			return params, badRequest("sort", "sort must be one of rating, price, createdAt", nil)
		}
		params.Sort = v
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		params.Limit = min(l, s.maxLimit)
	}
	if v := strings.TrimSpace(values.Get("skip")); v != "" {
		sk, err := strconv.Atoi(v)
		if err != nil || sk < 0 {
			return params, badRequest("skip", "skip must be a non-negative integer", err)
		}
		params.Skip = sk
	}
	return params, nil
}

// ListBooks returns the filtered page and the total number of matches. The
// page and the count are queried concurrently.
func (s *Service) ListBooks(ctx context.Context, params ListParams) (BookListResult, error) {
	key := listCacheKey(params)
	var cached BookListResult
	if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}

	filter := dbgen.CountBooksParams{
		Search:    params.Search,
		Category:  params.Category,
		MinPrice:  params.MinPrice,
		MaxPrice:  params.MaxPrice,
		MinRating: params.MinRating,
	}
	var (
		rows  []dbgen.Book
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.queries.ListBooks(gctx, dbgen.ListBooksParams{
			Search:    filter.Search,
			Category:  filter.Category,
			MinPrice:  filter.MinPrice,
			MaxPrice:  filter.MaxPrice,
			MinRating: filter.MinRating,
			Sort:      params.Sort,
			Limit:     int32(params.Limit),
			Offset:    int32(params.Skip),
		})
		if err != nil {
			return fmt.Errorf("list books: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		total, err = s.queries.CountBooks(gctx, filter)
		if err != nil {
			return fmt.Errorf("count books: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return BookListResult{}, err
	}

	result := BookListResult{Books: make([]Book, 0, len(rows)), Total: total}
	for _, row := range rows {
		result.Books = append(result.Books, FromModel(row))
	}
	_ = s.cache.SetJSON(ctx, key, result)
	return result, nil
}

// GetBook returns a single book.
func (s *Service) GetBook(ctx context.Context, id int64) (Book, error) {
	if id <= 0 {
		return Book{}, badRequest("id", "id must be a positive integer", nil)
	}
	cacheKey := detailCacheKey(id)
	var cached Book
	if ok, err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil && ok {
		return cached, nil
	}
	row, err := s.queries.GetBook(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Book{}, &common.AppError{Code: "NOT_FOUND", Message: "book not found", HTTPStatus: http.StatusNotFound, Err: err}
		}
		return Book{}, fmt.Errorf("get book: %w", err)
	}
	book := FromModel(row)
	_ = s.cache.SetJSON(ctx, cacheKey, book)
	return book, nil
}

// ListCategories returns the categories that currently have stock.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.queries.ListBookCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]Category, 0, len(rows))
	for _, row := range rows {
		out = append(out, Category{Name: row.Category, Books: row.Books})
	}
	return out, nil
}

// InvalidateBook drops the cached detail for id, e.g. after a new review.
func (s *Service) InvalidateBook(ctx context.Context, id int64) error {
	return s.cache.Invalidate(ctx, detailCacheKey(id))
}

// FromModel converts a stored row into the public payload.
func FromModel(row dbgen.Book) Book {
	b := Book{
		ID:          row.ID,
		Title:       row.Title,
		Author:      row.Author,
		Category:    row.Category,
		Price:       row.Price,
		Rating:      row.Rating,
		ReviewCount: int(row.ReviewCount),
		Stock:       row.Stock,
	}
	if row.WeightKg.Valid {
		w := row.WeightKg.Decimal
		b.WeightKg = &w
	}
	if row.Image.Valid {
		img := row.Image.String
		b.Image = &img
	}
	if row.Description.Valid {
		desc := row.Description.String
		b.Description = &desc
	}
	if row.CreatedAt.Valid {
		b.CreatedAt = row.CreatedAt.Time
	}
	return b
}

func listCacheKey(p ListParams) string {
	raw := strings.Join([]string{
		strings.ToLower(p.Search),
		p.Category,
		p.MinPrice.String(),
		p.MaxPrice.String(),
		p.MinRating.String(),
		p.Sort,
		strconv.Itoa(p.Skip),
		strconv.Itoa(p.Limit),
	}, "|")
	return "catalog:books:list:" + common.Sha256Hex(raw)[:16]
}

func detailCacheKey(id int64) string {
	return "catalog:books:detail:" + strconv.FormatInt(id, 10)
}

func decimalParam(values url.Values, name string, def decimal.Decimal) (decimal.Decimal, error) {
	v := strings.TrimSpace(values.Get(name))
	if v == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		return def, badRequest(name, name+" must be a non-negative number", err)
	}
	return d, nil
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details: map[string]any{
			"field": field,
		},
	}
}
