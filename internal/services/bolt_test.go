package services_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/or0ji/Association-Website-Template/internal/models"
	"github.com/or0ji/Association-Website-Template/internal/services"
)

func newTestBoltDB(t *testing.T) services.BoltDB {
	t.Helper()

	db, err := services.NewBoltDB(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("NewBoltDB() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func ptr[T any](v T) *T {
	return &v
}

func TestBoltDBReplaceContent(t *testing.T) {
	db := newTestBoltDB(t)
	ctx := context.Background()

	first := services.Content{
		Menus:      []models.Menu{{ID: 1, Name: "Home", Slug: "home", Type: models.MenuTypePage, IsVisible: true}},
		Categories: []models.Category{{ID: 1, Name: "News", Slug: "news"}},
		Articles: []models.Article{
			{ID: 2, Title: "Second", IsPublished: true},
			{ID: 1, Title: "First", IsPublished: true},
		},
		Banners:  []models.Banner{{ID: 1, Image: "/uploads/a.png", IsActive: true}},
		Settings: []models.Setting{{Key: "site_name", Value: ptr("Chess Club")}},
	}
	if err := db.ReplaceContent(ctx, first); err != nil {
		t.Fatalf("ReplaceContent() error = %v", err)
	}

	articles, err := db.Articles(ctx)
	if err != nil {
		t.Fatalf("Articles() error = %v", err)
	}
	if len(articles) != 2 || articles[0].ID != 1 || articles[1].ID != 2 {
		t.Errorf("Articles() = %+v, want ids [1 2]", articles)
	}

	second := services.Content{
		Categories: []models.Category{{ID: 5, Name: "Events", Slug: "events"}},
	}
	if err := db.ReplaceContent(ctx, second); err != nil {
		t.Fatalf("ReplaceContent() error = %v", err)
	}

	menus, err := db.Menus(ctx)
	if err != nil {
		t.Fatalf("Menus() error = %v", err)
	}
	if len(menus) != 0 {
		t.Errorf("Menus() = %+v, want none after replace", menus)
	}
	categories, err := db.Categories(ctx)
	if err != nil {
		t.Fatalf("Categories() error = %v", err)
	}
	if len(categories) != 1 || categories[0].Slug != "events" {
		t.Errorf("Categories() = %+v, want only events", categories)
	}
	settings, err := db.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings() error = %v", err)
	}
	if len(settings) != 0 {
		t.Errorf("Settings() = %+v, want none after replace", settings)
	}
}

func TestBoltDBArticle(t *testing.T) {
	db := newTestBoltDB(t)
	ctx := context.Background()

	if err := db.ReplaceContent(ctx, services.Content{
		Articles: []models.Article{{ID: 3, Title: "Hello", IsPublished: true}},
	}); err != nil {
		t.Fatal(err)
	}

	article, err := db.Article(ctx, 3)
	if err != nil {
		t.Fatalf("Article() error = %v", err)
	}
	if article.Title != "Hello" {
		t.Errorf("Article().Title = %q, want Hello", article.Title)
	}

	if _, err := db.Article(ctx, 4); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("Article() error = %v, want ErrNotFound", err)
	}
	if _, err := db.IncrementViewCount(ctx, 4); !errors.Is(err, services.ErrNotFound) {
		t.Errorf("IncrementViewCount() error = %v, want ErrNotFound", err)
	}
}

func TestBoltDBIncrementViewCountConcurrent(t *testing.T) {
	db := newTestBoltDB(t)
	ctx := context.Background()

	if err := db.ReplaceContent(ctx, services.Content{
		Articles: []models.Article{{ID: 1, Title: "Popular", IsPublished: true}},
	}); err != nil {
		t.Fatal(err)
	}

	const visits = 20
	var wg sync.WaitGroup
	for range visits {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := db.IncrementViewCount(ctx, 1); err != nil {
				t.Errorf("IncrementViewCount() error = %v", err)
			}
		}()
	}
	wg.Wait()

	article, err := db.Article(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if article.ViewCount != visits {
		t.Errorf("ViewCount = %d, want %d", article.ViewCount, visits)
	}
}

func TestBoltDBMessages(t *testing.T) {
	db := newTestBoltDB(t)
	ctx := context.Background()

	msgs, err := db.Messages(ctx, "unknown")
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("Messages() = %+v, want none for an unknown conversation", msgs)
	}

	now := time.Now().UTC().Truncate(time.Second)
	turn1 := []models.ChatMessage{
		{ID: "u1", Role: models.RoleUser, Content: "hi", Timestamp: now},
		{ID: "a1", Role: models.RoleAssistant, Content: "hello", Timestamp: now},
	}
	if err := db.AddMessages(ctx, "conv", turn1...); err != nil {
		t.Fatalf("AddMessages() error = %v", err)
	}
	if err := db.AddMessages(ctx, "conv", models.ChatMessage{ID: "u2", Role: models.RoleUser, Content: "bye"}); err != nil {
		t.Fatalf("AddMessages() error = %v", err)
	}
	if err := db.AddMessages(ctx, "other", models.ChatMessage{ID: "x", Role: models.RoleUser}); err != nil {
		t.Fatalf("AddMessages() error = %v", err)
	}

	msgs, err = db.Messages(ctx, "conv")
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	var ids []string
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	if len(ids) != 3 || ids[0] != "u1" || ids[1] != "a1" || ids[2] != "u2" {
		t.Errorf("Messages() ids = %v, want [u1 a1 u2]", ids)
	}
	if !msgs[0].Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", msgs[0].Timestamp, now)
	}

	// Reseeding the content leaves conversations alone.
	if err := db.ReplaceContent(ctx, services.Content{}); err != nil {
		t.Fatal(err)
	}
	msgs, err = db.Messages(ctx, "conv")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Errorf("Messages() after ReplaceContent = %d messages, want 3", len(msgs))
	}
}
