package services

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/or0ji/Association-Website-Template/internal/models"
)

// ContentStore is the read side of the site content plus view counting.
type ContentStore interface {
	Menus(ctx context.Context) ([]models.Menu, error)
	Categories(ctx context.Context) ([]models.Category, error)
	Articles(ctx context.Context) ([]models.Article, error)
	Article(ctx context.Context, id int) (models.Article, error)
	IncrementViewCount(ctx context.Context, id int) (models.Article, error)
	Banners(ctx context.Context) ([]models.Banner, error)
	Settings(ctx context.Context) ([]models.Setting, error)
}

// Site answers the queries of the public website.
type Site struct {
	store ContentStore

	logger *slog.Logger
}

// PageContent is a single page rendered from a page-type menu entry.
type PageContent struct {
	ID      int     `json:"id"`
	Name    string  `json:"name"`
	Slug    string  `json:"slug"`
	Content *string `json:"content"`
}

// CategoryArticles is one page of a category's published articles.
type CategoryArticles struct {
	Category models.Category `json:"category"`
	models.Page[models.ArticleSummary]
}

// NewSite creates a Site reading from store.
func NewSite(store ContentStore, logger *slog.Logger) Site {
	return Site{
		store:  store,
		logger: logger.With(slog.String("module", "site")),
	}
}

// MenuTree returns the visible menu entries nested under their parents, every level ordered by sort.
// Entries whose parent is hidden are left out along with it.
func (s Site) MenuTree(ctx context.Context) ([]models.MenuNode, error) {
	menus, err := s.store.Menus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get menus: %w", err)
	}
	categoryNames, err := s.categoryNames(ctx)
	if err != nil {
		return nil, err
	}

	visible := slices.DeleteFunc(menus, func(m models.Menu) bool { return !m.IsVisible })
	slices.SortStableFunc(visible, func(a, b models.Menu) int { return cmp.Compare(a.Sort, b.Sort) })

	return buildMenuTree(visible, nil, categoryNames), nil
}

func buildMenuTree(menus []models.Menu, parentID *int, categoryNames map[int]string) []models.MenuNode {
	tree := []models.MenuNode{}
	for _, m := range menus {
		if !sameID(m.ParentID, parentID) {
			continue
		}
		id := m.ID
		node := models.MenuNode{
			Menu:     m,
			Children: buildMenuTree(menus, &id, categoryNames),
		}
		if m.CategoryID != nil {
			if name, ok := categoryNames[*m.CategoryID]; ok {
				node.CategoryName = &name
			}
		}
		tree = append(tree, node)
	}
	return tree
}

func sameID(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Page returns the content of the visible page-type menu entry with the given slug.
func (s Site) Page(ctx context.Context, slug string) (PageContent, error) {
	menu, err := s.visibleMenu(ctx, slug, models.MenuTypePage)
	if err != nil {
		return PageContent{}, err
	}
	return PageContent{
		ID:      menu.ID,
		Name:    menu.Name,
		Slug:    menu.Slug,
		Content: menu.PageContent,
	}, nil
}

// CategoryArticles returns the requested page of published articles of the category linked to the
// visible category-type menu entry with the given slug. Pinned articles come first, then the most
// recently published.
func (s Site) CategoryArticles(ctx context.Context, slug string, page, pageSize int) (CategoryArticles, error) {
	menu, err := s.visibleMenu(ctx, slug, models.MenuTypeCategory)
	if err != nil {
		return CategoryArticles{}, err
	}
	if menu.CategoryID == nil {
		return CategoryArticles{}, ErrNotFound
	}

	categories, err := s.store.Categories(ctx)
	if err != nil {
		return CategoryArticles{}, fmt.Errorf("failed to get categories: %w", err)
	}
	idx := slices.IndexFunc(categories, func(c models.Category) bool { return c.ID == *menu.CategoryID })
	if idx < 0 {
		return CategoryArticles{}, ErrNotFound
	}
	category := categories[idx]

	articles, err := s.publishedArticles(ctx, &category.ID)
	if err != nil {
		return CategoryArticles{}, err
	}

	summaries := make([]models.ArticleSummary, len(articles))
	for i, a := range articles {
		summaries[i] = summarize(a, nil)
	}

	return CategoryArticles{
		Category: category,
		Page:     models.NewPage(summaries, page, pageSize),
	}, nil
}

// LatestArticles returns up to limit published articles for the homepage, optionally restricted to one
// category.
func (s Site) LatestArticles(ctx context.Context, limit int, categoryID *int) ([]models.ArticleSummary, error) {
	articles, err := s.publishedArticles(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	categoryNames, err := s.categoryNames(ctx)
	if err != nil {
		return nil, err
	}

	if len(articles) > limit {
		articles = articles[:limit]
	}
	summaries := make([]models.ArticleSummary, len(articles))
	for i, a := range articles {
		summaries[i] = summarize(a, categoryNames)
	}
	return summaries, nil
}

// ArticleDetail returns a published article, counting the visit, with links to the previous and next
// articles of the same category by publication time.
func (s Site) ArticleDetail(ctx context.Context, id int) (models.ArticleDetail, error) {
	article, err := s.store.Article(ctx, id)
	if err != nil {
		return models.ArticleDetail{}, err
	}
	if !article.IsPublished {
		return models.ArticleDetail{}, ErrNotFound
	}

	article, err = s.store.IncrementViewCount(ctx, id)
	if err != nil {
		return models.ArticleDetail{}, fmt.Errorf("failed to count view: %w", err)
	}

	categoryNames, err := s.categoryNames(ctx)
	if err != nil {
		return models.ArticleDetail{}, err
	}

	detail := models.ArticleDetail{
		ArticleSummary: summarize(article, categoryNames),
		Content:        article.Content,
	}

	s.logger.Debug("Counted article view", slog.Int("id", id), slog.Int("views", article.ViewCount))

	if article.PublishedAt == nil || article.CategoryID == nil {
		return detail, nil
	}

	siblings, err := s.publishedArticles(ctx, article.CategoryID)
	if err != nil {
		return models.ArticleDetail{}, err
	}

	var prev, next *models.Article
	for i := range siblings {
		a := &siblings[i]
		if a.PublishedAt == nil {
			continue
		}
		if a.PublishedAt.Before(*article.PublishedAt) && (prev == nil || a.PublishedAt.After(*prev.PublishedAt)) {
			prev = a
		}
		if a.PublishedAt.After(*article.PublishedAt) && (next == nil || a.PublishedAt.Before(*next.PublishedAt)) {
			next = a
		}
	}
	if prev != nil {
		detail.PrevArticle = &models.ArticleLink{ID: prev.ID, Title: prev.Title}
	}
	if next != nil {
		detail.NextArticle = &models.ArticleLink{ID: next.ID, Title: next.Title}
	}

	return detail, nil
}

// Banners returns the active banners ordered by sort.
func (s Site) Banners(ctx context.Context) ([]models.Banner, error) {
	banners, err := s.store.Banners(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get banners: %w", err)
	}
	active := slices.DeleteFunc(banners, func(b models.Banner) bool { return !b.IsActive })
	slices.SortStableFunc(active, func(a, b models.Banner) int { return cmp.Compare(a.Sort, b.Sort) })
	if active == nil {
		active = []models.Banner{}
	}
	return active, nil
}

// Settings returns the site settings as a key/value map.
func (s Site) Settings(ctx context.Context) (map[string]*string, error) {
	settings, err := s.store.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	res := make(map[string]*string, len(settings))
	for _, st := range settings {
		res[st.Key] = st.Value
	}
	return res, nil
}

func (s Site) visibleMenu(ctx context.Context, slug string, typ models.MenuType) (models.Menu, error) {
	menus, err := s.store.Menus(ctx)
	if err != nil {
		return models.Menu{}, fmt.Errorf("failed to get menus: %w", err)
	}
	idx := slices.IndexFunc(menus, func(m models.Menu) bool {
		return m.Slug == slug && m.Type == typ && m.IsVisible
	})
	if idx < 0 {
		return models.Menu{}, ErrNotFound
	}
	return menus[idx], nil
}

// publishedArticles returns the published articles, pinned first and then newest first. A nil
// categoryID means every category.
func (s Site) publishedArticles(ctx context.Context, categoryID *int) ([]models.Article, error) {
	articles, err := s.store.Articles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get articles: %w", err)
	}

	articles = slices.DeleteFunc(articles, func(a models.Article) bool {
		return !a.IsPublished || (categoryID != nil && !sameID(a.CategoryID, categoryID))
	})
	slices.SortStableFunc(articles, compareArticles)
	return articles, nil
}

func compareArticles(a, b models.Article) int {
	if a.IsTop != b.IsTop {
		if a.IsTop {
			return -1
		}
		return 1
	}
	// Unpublished dates sort last, like NULLs in a descending SQL order.
	switch {
	case a.PublishedAt == nil && b.PublishedAt == nil:
		return 0
	case a.PublishedAt == nil:
		return 1
	case b.PublishedAt == nil:
		return -1
	}
	return b.PublishedAt.Compare(*a.PublishedAt)
}

func (s Site) categoryNames(ctx context.Context) (map[int]string, error) {
	categories, err := s.store.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}
	names := make(map[int]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	return names, nil
}

func summarize(a models.Article, categoryNames map[int]string) models.ArticleSummary {
	sum := models.ArticleSummary{
		ID:          a.ID,
		Title:       a.Title,
		Slug:        a.Slug,
		Cover:       a.Cover,
		Summary:     a.Summary,
		CategoryID:  a.CategoryID,
		IsTop:       a.IsTop,
		ViewCount:   a.ViewCount,
		PublishedAt: a.PublishedAt,
		CreatedAt:   a.CreatedAt,
	}
	if a.CategoryID != nil && categoryNames != nil {
		if name, ok := categoryNames[*a.CategoryID]; ok {
			sum.CategoryName = &name
		}
	}
	return sum
}
