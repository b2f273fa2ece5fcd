package services

import (
	"fmt"
	"time"

	"github.com/or0ji/Association-Website-Template/internal/models"
)

// SeedFile is the YAML document describing the whole site content. Records reference each other by
// slug; ids are assigned in document order when the file is converted.
type SeedFile struct {
	Settings   map[string]string `yaml:"settings"`
	Categories []SeedCategory    `yaml:"categories"`
	Menus      []SeedMenu        `yaml:"menus"`
	Articles   []SeedArticle     `yaml:"articles"`
	Banners    []SeedBanner      `yaml:"banners"`
}

// SeedCategory describes an article category.
type SeedCategory struct {
	Name        string `yaml:"name"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
}

// SeedMenu describes a navigation entry and its children. Page entries carry Markdown content;
// category entries name a category by slug.
type SeedMenu struct {
	Name     string          `yaml:"name"`
	Slug     string          `yaml:"slug"`
	Type     models.MenuType `yaml:"type"`
	Content  string          `yaml:"content"`
	Category string          `yaml:"category"`
	Hidden   bool            `yaml:"hidden"`
	Children []SeedMenu      `yaml:"children"`
}

// SeedArticle describes an article with a Markdown body.
type SeedArticle struct {
	Title       string     `yaml:"title"`
	Slug        string     `yaml:"slug"`
	Category    string     `yaml:"category"`
	Cover       string     `yaml:"cover"`
	Summary     string     `yaml:"summary"`
	Body        string     `yaml:"body"`
	Draft       bool       `yaml:"draft"`
	Top         bool       `yaml:"top"`
	PublishedAt *time.Time `yaml:"publishedAt"`
}

// SeedBanner describes a homepage slide.
type SeedBanner struct {
	Title    string `yaml:"title"`
	Image    string `yaml:"image"`
	Link     string `yaml:"link"`
	Inactive bool   `yaml:"inactive"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Content converts the seed file into store records, rendering Markdown to HTML. Menus and banners are
// sorted in document order. Published articles without a date are stamped with now.
func (f SeedFile) Content(now time.Time) (Content, error) {
	var c Content

	categoryIDs := make(map[string]int, len(f.Categories))
	for i, sc := range f.Categories {
		if sc.Slug == "" {
			return Content{}, fmt.Errorf("category %q has no slug", sc.Name)
		}
		if _, ok := categoryIDs[sc.Slug]; ok {
			return Content{}, fmt.Errorf("duplicate category slug %q", sc.Slug)
		}
		id := i + 1
		categoryIDs[sc.Slug] = id
		c.Categories = append(c.Categories, models.Category{
			ID:          id,
			Name:        sc.Name,
			Slug:        sc.Slug,
			Description: optional(sc.Description),
			CreatedAt:   now,
		})
	}

	menuSlugs := make(map[string]bool)
	var addMenus func(menus []SeedMenu, parentID *int) error
	addMenus = func(menus []SeedMenu, parentID *int) error {
		for i, sm := range menus {
			if menuSlugs[sm.Slug] {
				return fmt.Errorf("duplicate menu slug %q", sm.Slug)
			}
			menuSlugs[sm.Slug] = true

			menu := models.Menu{
				ID:        len(c.Menus) + 1,
				Name:      sm.Name,
				Slug:      sm.Slug,
				ParentID:  parentID,
				Type:      sm.Type,
				Sort:      i,
				IsVisible: !sm.Hidden,
				CreatedAt: now,
			}
			switch sm.Type {
			case models.MenuTypePage:
				if sm.Content != "" {
					html, err := RenderMarkdown(sm.Content)
					if err != nil {
						return fmt.Errorf("menu %q: %w", sm.Slug, err)
					}
					menu.PageContent = &html
				}
			case models.MenuTypeCategory:
				id, ok := categoryIDs[sm.Category]
				if !ok {
					return fmt.Errorf("menu %q: unknown category %q", sm.Slug, sm.Category)
				}
				menu.CategoryID = &id
			default:
				return fmt.Errorf("menu %q: unknown type %q", sm.Slug, sm.Type)
			}
			c.Menus = append(c.Menus, menu)

			menuID := menu.ID
			if err := addMenus(sm.Children, &menuID); err != nil {
				return err
			}
		}
		return nil
	}
	if err := addMenus(f.Menus, nil); err != nil {
		return Content{}, err
	}

	for i, sa := range f.Articles {
		article := models.Article{
			ID:          i + 1,
			Title:       sa.Title,
			Slug:        optional(sa.Slug),
			Cover:       optional(sa.Cover),
			Summary:     optional(sa.Summary),
			IsPublished: !sa.Draft,
			IsTop:       sa.Top,
			PublishedAt: sa.PublishedAt,
			CreatedAt:   now,
		}
		if sa.Category != "" {
			id, ok := categoryIDs[sa.Category]
			if !ok {
				return Content{}, fmt.Errorf("article %q: unknown category %q", sa.Title, sa.Category)
			}
			article.CategoryID = &id
		}
		if sa.Body != "" {
			html, err := RenderMarkdown(sa.Body)
			if err != nil {
				return Content{}, fmt.Errorf("article %q: %w", sa.Title, err)
			}
			article.Content = &html
		}
		if article.IsPublished && article.PublishedAt == nil {
			published := now
			article.PublishedAt = &published
		}
		c.Articles = append(c.Articles, article)
	}

	for i, sb := range f.Banners {
		if sb.Image == "" {
			return Content{}, fmt.Errorf("banner %d has no image", i+1)
		}
		c.Banners = append(c.Banners, models.Banner{
			ID:        i + 1,
			Title:     optional(sb.Title),
			Image:     sb.Image,
			Link:      optional(sb.Link),
			Sort:      i,
			IsActive:  !sb.Inactive,
			CreatedAt: now,
		})
	}

	for key, value := range f.Settings {
		c.Settings = append(c.Settings, models.Setting{Key: key, Value: optional(value)})
	}

	return c, nil
}
