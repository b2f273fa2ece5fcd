package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/or0ji/Association-Website-Template/internal/services"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// Bounds of the list query parameters.
const (
	defaultPageSize = 10
	maxPageSize     = 50
	defaultLimit    = 10
	maxLimit        = 20
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// writeFailure answers a failed query: 404 for missing records, 500 otherwise.
func (m Main) writeFailure(w http.ResponseWriter, r *http.Request, notFound string, err error) {
	if errors.Is(err, services.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	m.logger.Error("Query failed",
		slog.String("path", r.URL.Path),
		slog.String(errLoggerKey, err.Error()))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// queryInt reads an optional integer query parameter, checking it lies within [lo, hi].
func queryInt(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be between %d and %d", name, lo, hi)
	}
	return v, nil
}

// HandleMenuTree returns the visible navigation menus as a tree.
func (m Main) HandleMenuTree(w http.ResponseWriter, r *http.Request) {
	tree, err := m.site.MenuTree(r.Context())
	if err != nil {
		m.writeFailure(w, r, "menus not found", err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// HandlePage returns the content of a single page.
func (m Main) HandlePage(w http.ResponseWriter, r *http.Request) {
	page, err := m.site.Page(r.Context(), r.PathValue("slug"))
	if err != nil {
		m.writeFailure(w, r, "page not found", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleCategoryArticles returns one page of the articles of a category.
func (m Main) HandleCategoryArticles(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1, 1, math.MaxInt32)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	pageSize, err := queryInt(r, "page_size", defaultPageSize, 1, maxPageSize)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	res, err := m.site.CategoryArticles(r.Context(), r.PathValue("slug"), page, pageSize)
	if err != nil {
		m.writeFailure(w, r, "category not found", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleLatestArticles returns the most recent articles, optionally of a single category.
func (m Main) HandleLatestArticles(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultLimit, 1, maxLimit)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	var categoryID *int
	if raw := r.URL.Query().Get("category_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "category_id must be an integer")
			return
		}
		categoryID = &id
	}

	articles, err := m.site.LatestArticles(r.Context(), limit, categoryID)
	if err != nil {
		m.writeFailure(w, r, "articles not found", err)
		return
	}
	writeJSON(w, http.StatusOK, articles)
}

// HandleArticle returns a published article and counts the view.
func (m Main) HandleArticle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "id must be an integer")
		return
	}

	article, err := m.site.ArticleDetail(r.Context(), id)
	if err != nil {
		m.writeFailure(w, r, "article not found", err)
		return
	}
	writeJSON(w, http.StatusOK, article)
}

// HandleBanners returns the active homepage banners.
func (m Main) HandleBanners(w http.ResponseWriter, r *http.Request) {
	banners, err := m.site.Banners(r.Context())
	if err != nil {
		m.writeFailure(w, r, "banners not found", err)
		return
	}
	writeJSON(w, http.StatusOK, banners)
}

// HandleSettings returns the site settings.
func (m Main) HandleSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := m.site.Settings(r.Context())
	if err != nil {
		m.writeFailure(w, r, "settings not found", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// HandleHealth is the liveness probe.
func (m Main) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy"})
}
