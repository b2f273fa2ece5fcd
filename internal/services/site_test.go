package services_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/or0ji/Association-Website-Template/internal/models"
	"github.com/or0ji/Association-Website-Template/internal/services"
)

var day = time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)

func daysAfter(n int) *time.Time {
	t := day.AddDate(0, 0, n)
	return &t
}

func newTestSite(t *testing.T) (services.Site, services.BoltDB) {
	t.Helper()

	db := newTestBoltDB(t)
	content := services.Content{
		Categories: []models.Category{
			{ID: 1, Name: "News", Slug: "news"},
			{ID: 2, Name: "Notices", Slug: "notices"},
		},
		Menus: []models.Menu{
			{ID: 1, Name: "Home", Slug: "home", Type: models.MenuTypePage, PageContent: ptr("<p>Welcome</p>"), Sort: 0, IsVisible: true},
			{ID: 2, Name: "About", Slug: "about", Type: models.MenuTypePage, Sort: 2, IsVisible: true},
			{ID: 3, Name: "History", Slug: "history", ParentID: ptr(2), Type: models.MenuTypePage, Sort: 1, IsVisible: true},
			{ID: 4, Name: "Team", Slug: "team", ParentID: ptr(2), Type: models.MenuTypePage, Sort: 0, IsVisible: true},
			{ID: 5, Name: "News", Slug: "news", Type: models.MenuTypeCategory, CategoryID: ptr(1), Sort: 1, IsVisible: true},
			{ID: 6, Name: "Secret", Slug: "secret", Type: models.MenuTypePage, Sort: 3},
			{ID: 7, Name: "Under secret", Slug: "under-secret", ParentID: ptr(6), Type: models.MenuTypePage, IsVisible: true},
		},
		Articles: []models.Article{
			{ID: 1, Title: "Oldest", CategoryID: ptr(1), IsPublished: true, PublishedAt: daysAfter(1)},
			{ID: 2, Title: "Middle", CategoryID: ptr(1), IsPublished: true, PublishedAt: daysAfter(2), Content: ptr("<p>m</p>")},
			{ID: 3, Title: "Newest", CategoryID: ptr(1), IsPublished: true, PublishedAt: daysAfter(3)},
			{ID: 4, Title: "Pinned", CategoryID: ptr(1), IsPublished: true, IsTop: true, PublishedAt: daysAfter(0)},
			{ID: 5, Title: "Draft", CategoryID: ptr(1), PublishedAt: daysAfter(4)},
			{ID: 6, Title: "Notice", CategoryID: ptr(2), IsPublished: true, PublishedAt: daysAfter(5)},
		},
		Banners: []models.Banner{
			{ID: 1, Image: "b.png", Sort: 2, IsActive: true},
			{ID: 2, Image: "a.png", Sort: 1, IsActive: true},
			{ID: 3, Image: "off.png", Sort: 0},
		},
		Settings: []models.Setting{
			{Key: "site_name", Value: ptr("Chess Club")},
			{Key: "site_phone"},
		},
	}
	if err := db.ReplaceContent(context.Background(), content); err != nil {
		t.Fatal(err)
	}
	return services.NewSite(db, testLogger()), db
}

func titles(summaries []models.ArticleSummary) []string {
	res := make([]string, len(summaries))
	for i, s := range summaries {
		res[i] = s.Title
	}
	return res
}

func TestSiteMenuTree(t *testing.T) {
	site, _ := newTestSite(t)

	tree, err := site.MenuTree(context.Background())
	if err != nil {
		t.Fatalf("MenuTree() error = %v", err)
	}

	var top []string
	for _, n := range tree {
		top = append(top, n.Slug)
	}
	if !slices.Equal(top, []string{"home", "news", "about"}) {
		t.Fatalf("top level = %v, want [home news about]", top)
	}

	about := tree[2]
	var children []string
	for _, n := range about.Children {
		children = append(children, n.Slug)
	}
	if !slices.Equal(children, []string{"team", "history"}) {
		t.Errorf("about children = %v, want [team history]", children)
	}

	news := tree[1]
	if news.CategoryName == nil || *news.CategoryName != "News" {
		t.Errorf("news CategoryName = %v, want News", news.CategoryName)
	}
	if news.Children == nil {
		t.Error("leaf Children should be an empty list, not nil")
	}
}

func TestSitePage(t *testing.T) {
	site, _ := newTestSite(t)
	ctx := context.Background()

	page, err := site.Page(ctx, "home")
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	if page.Content == nil || *page.Content != "<p>Welcome</p>" {
		t.Errorf("Page().Content = %v, want <p>Welcome</p>", page.Content)
	}

	for _, slug := range []string{"secret", "news", "missing"} {
		if _, err := site.Page(ctx, slug); !errors.Is(err, services.ErrNotFound) {
			t.Errorf("Page(%q) error = %v, want ErrNotFound", slug, err)
		}
	}
}

func TestSiteCategoryArticles(t *testing.T) {
	site, _ := newTestSite(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		page      int
		pageSize  int
		want      []string
		wantPages int
	}{
		{name: "First page", page: 1, pageSize: 3, want: []string{"Pinned", "Newest", "Middle"}, wantPages: 2},
		{name: "Second page", page: 2, pageSize: 3, want: []string{"Oldest"}, wantPages: 2},
		{name: "Past the end", page: 5, pageSize: 3, want: []string{}, wantPages: 2},
		{name: "Everything", page: 1, pageSize: 50, want: []string{"Pinned", "Newest", "Middle", "Oldest"}, wantPages: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := site.CategoryArticles(ctx, "news", tt.page, tt.pageSize)
			if err != nil {
				t.Fatalf("CategoryArticles() error = %v", err)
			}
			if res.Category.Slug != "news" {
				t.Errorf("Category = %q, want news", res.Category.Slug)
			}
			if got := titles(res.Items); !slices.Equal(got, tt.want) {
				t.Errorf("Items = %v, want %v", got, tt.want)
			}
			if res.Total != 4 || res.TotalPages != tt.wantPages {
				t.Errorf("Total = %d TotalPages = %d, want 4 and %d", res.Total, res.TotalPages, tt.wantPages)
			}
		})
	}

	if _, err := site.CategoryArticles(ctx, "home", 1, 10); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("CategoryArticles(page menu) error = %v, want ErrNotFound", err)
	}
}

func TestSiteLatestArticles(t *testing.T) {
	site, _ := newTestSite(t)
	ctx := context.Background()

	latest, err := site.LatestArticles(ctx, 3, nil)
	if err != nil {
		t.Fatalf("LatestArticles() error = %v", err)
	}
	if got := titles(latest); !slices.Equal(got, []string{"Pinned", "Notice", "Newest"}) {
		t.Errorf("LatestArticles() = %v, want [Pinned Notice Newest]", got)
	}
	if latest[1].CategoryName == nil || *latest[1].CategoryName != "Notices" {
		t.Errorf("CategoryName = %v, want Notices", latest[1].CategoryName)
	}

	notices, err := site.LatestArticles(ctx, 10, ptr(2))
	if err != nil {
		t.Fatalf("LatestArticles() error = %v", err)
	}
	if got := titles(notices); !slices.Equal(got, []string{"Notice"}) {
		t.Errorf("LatestArticles(category 2) = %v, want [Notice]", got)
	}
}

func TestSiteArticleDetail(t *testing.T) {
	site, db := newTestSite(t)
	ctx := context.Background()

	detail, err := site.ArticleDetail(ctx, 2)
	if err != nil {
		t.Fatalf("ArticleDetail() error = %v", err)
	}
	if detail.Content == nil || *detail.Content != "<p>m</p>" {
		t.Errorf("Content = %v, want <p>m</p>", detail.Content)
	}
	if detail.ViewCount != 1 {
		t.Errorf("ViewCount = %d, want 1", detail.ViewCount)
	}
	if detail.PrevArticle == nil || detail.PrevArticle.Title != "Oldest" {
		t.Errorf("PrevArticle = %+v, want Oldest", detail.PrevArticle)
	}
	if detail.NextArticle == nil || detail.NextArticle.Title != "Newest" {
		t.Errorf("NextArticle = %+v, want Newest", detail.NextArticle)
	}

	if _, err := site.ArticleDetail(ctx, 2); err != nil {
		t.Fatal(err)
	}
	stored, err := db.Article(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if stored.ViewCount != 2 {
		t.Errorf("stored ViewCount = %d, want 2", stored.ViewCount)
	}

	// The draft is later than Newest but must not be linked.
	newest, err := site.ArticleDetail(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if newest.NextArticle != nil {
		t.Errorf("NextArticle = %+v, want nil", newest.NextArticle)
	}

	if _, err := site.ArticleDetail(ctx, 5); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("ArticleDetail(draft) error = %v, want ErrNotFound", err)
	}
	draft, err := db.Article(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if draft.ViewCount != 0 {
		t.Errorf("draft ViewCount = %d, want 0", draft.ViewCount)
	}
}

func TestSiteBannersAndSettings(t *testing.T) {
	site, _ := newTestSite(t)
	ctx := context.Background()

	banners, err := site.Banners(ctx)
	if err != nil {
		t.Fatalf("Banners() error = %v", err)
	}
	var images []string
	for _, b := range banners {
		images = append(images, b.Image)
	}
	if !slices.Equal(images, []string{"a.png", "b.png"}) {
		t.Errorf("Banners() = %v, want [a.png b.png]", images)
	}

	settings, err := site.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings() error = %v", err)
	}
	if v := settings["site_name"]; v == nil || *v != "Chess Club" {
		t.Errorf("site_name = %v, want Chess Club", v)
	}
	if v, ok := settings["site_phone"]; !ok || v != nil {
		t.Errorf("site_phone = %v, %v, want present and null", v, ok)
	}
}
