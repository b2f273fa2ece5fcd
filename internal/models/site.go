package models

import "time"

// MenuType tells whether a menu entry renders a single page or an article category.
type MenuType string

const (
	MenuTypePage     MenuType = "page"
	MenuTypeCategory MenuType = "category"
)

// Menu is a navigation entry of the public website. Entries form a tree through ParentID.
type Menu struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	ParentID    *int      `json:"parent_id"`
	Type        MenuType  `json:"type"`
	PageContent *string   `json:"page_content"`
	CategoryID  *int      `json:"category_id"`
	Sort        int       `json:"sort"`
	IsVisible   bool      `json:"is_visible"`
	CreatedAt   time.Time `json:"created_at"`
}

// MenuNode is a Menu with its visible children, as served to the website header.
type MenuNode struct {
	Menu
	Children     []MenuNode `json:"children"`
	CategoryName *string    `json:"category_name"`
}

// Category groups articles.
type Category struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Article is a news item or notice. Content holds HTML.
type Article struct {
	ID          int        `json:"id"`
	Title       string     `json:"title"`
	Slug        *string    `json:"slug"`
	Cover       *string    `json:"cover"`
	Summary     *string    `json:"summary"`
	Content     *string    `json:"content,omitempty"`
	CategoryID  *int       `json:"category_id"`
	IsPublished bool       `json:"is_published"`
	IsTop       bool       `json:"is_top"`
	ViewCount   int        `json:"view_count"`
	PublishedAt *time.Time `json:"published_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// ArticleSummary is the list representation of an article.
type ArticleSummary struct {
	ID           int        `json:"id"`
	Title        string     `json:"title"`
	Slug         *string    `json:"slug"`
	Cover        *string    `json:"cover"`
	Summary      *string    `json:"summary"`
	CategoryID   *int       `json:"category_id"`
	CategoryName *string    `json:"category_name"`
	IsTop        bool       `json:"is_top"`
	ViewCount    int        `json:"view_count"`
	PublishedAt  *time.Time `json:"published_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ArticleLink points to a neighbouring article on the detail page.
type ArticleLink struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// ArticleDetail is an article with its navigation links.
type ArticleDetail struct {
	ArticleSummary
	Content     *string      `json:"content"`
	PrevArticle *ArticleLink `json:"prev_article"`
	NextArticle *ArticleLink `json:"next_article"`
}

// Banner is a homepage carousel slide.
type Banner struct {
	ID        int       `json:"id"`
	Title     *string   `json:"title"`
	Image     string    `json:"image"`
	Link      *string   `json:"link"`
	Sort      int       `json:"sort"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Setting is a single site-wide key/value pair such as site_name or site_phone.
type Setting struct {
	Key   string  `json:"key"`
	Value *string `json:"value"`
}

// Page is the pagination envelope shared by list endpoints.
type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}

// NewPage slices items for the requested one-based page. Page and pageSize must be positive.
func NewPage[T any](items []T, page, pageSize int) Page[T] {
	total := len(items)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	pageItems := make([]T, end-start)
	copy(pageItems, items[start:end])

	return Page[T]{
		Items:      pageItems,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}
}
