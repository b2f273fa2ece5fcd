package handlers

import (
	"context"
	"iter"
	"log/slog"

	"github.com/or0ji/Association-Website-Template/internal/models"
	"github.com/or0ji/Association-Website-Template/internal/services"
)

// Upstream is the chat backend the relay forwards visitor messages to. Chat returns an iterator over
// the events of a single turn; a non-nil error ends the turn.
type Upstream interface {
	Chat(ctx context.Context, req models.ChatRequest) iter.Seq2[models.StreamEvent, error]
	Configured() bool
}

// Site defines the queries behind the public content API.
type Site interface {
	MenuTree(ctx context.Context) ([]models.MenuNode, error)
	Page(ctx context.Context, slug string) (services.PageContent, error)
	CategoryArticles(ctx context.Context, slug string, page, pageSize int) (services.CategoryArticles, error)
	LatestArticles(ctx context.Context, limit int, categoryID *int) ([]models.ArticleSummary, error)
	ArticleDetail(ctx context.Context, id int) (models.ArticleDetail, error)
	Banners(ctx context.Context) ([]models.Banner, error)
	Settings(ctx context.Context) (map[string]*string, error)
}

// Main serves the chat relay and the public content API.
type Main struct {
	upstream Upstream
	site     Site

	// streams is cancelled on Shutdown, ending every open chat stream.
	streams context.Context
	cancel  context.CancelFunc

	logger *slog.Logger
}

const errLoggerKey = "err"

// NewMain creates a new Main instance relaying chat turns to upstream and answering content queries
// from site.
func NewMain(upstream Upstream, site Site, logger *slog.Logger) Main {
	ctx, cancel := context.WithCancel(context.Background())
	return Main{
		upstream: upstream,
		site:     site,
		streams:  ctx,
		cancel:   cancel,
		logger:   logger.With(slog.String("module", "main")),
	}
}

// Shutdown ends the chat streams still in flight. Their handlers return as soon as the upstream
// notices the cancellation, which lets http.Server.Shutdown complete.
func (m Main) Shutdown(context.Context) error {
	m.cancel()
	return nil
}
