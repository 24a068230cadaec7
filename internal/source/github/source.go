package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/release-tracker/internal/fetcher/colly"
	"github.com/JakeFAU/release-tracker/internal/source"
	"github.com/JakeFAU/release-tracker/internal/tracker"
)

// Config controls the release listing source.
type Config struct {
	URL      string
	Token    string
	PerPage  int
	MaxPages int
	// Timeout bounds one Fetch across all pages.
	Timeout time.Duration
}

// Source pages through the release listing. Unlike the schedule source it
// has no fallback: errors go to the caller.
type Source struct {
	cfg     Config
	fetcher source.HTTPFetcher
	logger  *zap.Logger
}

// New builds a Source.
func New(cfg Config, fetcher source.HTTPFetcher, logger *zap.Logger) *Source {
	if cfg.PerPage <= 0 {
		cfg.PerPage = 10
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{cfg: cfg, fetcher: fetcher, logger: logger}
}

// Name implements tracker.Source.
func (s *Source) Name() string { return SourceName }

// Fetch implements tracker.Source.
func (s *Source) Fetch(ctx context.Context) (tracker.Batch, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	var raw []RawRelease
	for page := 1; page <= s.cfg.MaxPages; page++ {
		entries, err := s.fetchPage(ctx, page)
		if err != nil {
			return tracker.Batch{Source: SourceName, Status: tracker.SourceFailed, Err: err}, err
		}
		raw = append(raw, entries...)
		if len(entries) < s.cfg.PerPage {
			break
		}
	}

	releases := Normalize(raw, s.logger)
	s.logger.Debug("electron releases fetched",
		zap.Int("raw", len(raw)),
		zap.Int("releases", len(releases)),
	)
	return tracker.Batch{Source: SourceName, Releases: releases, Status: tracker.SourceOK}, nil
}

func (s *Source) fetchPage(ctx context.Context, page int) ([]RawRelease, error) {
	pageURL, err := s.pageURL(page)
	if err != nil {
		return nil, err
	}
	headers := http.Header{"Accept": {"application/vnd.github+json"}}
	if s.cfg.Token != "" {
		headers.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	resp, err := s.fetcher.Fetch(ctx, collyfetcher.Request{URL: pageURL, Headers: headers})
	if err != nil {
		return nil, fmt.Errorf("fetch electron releases page %d: %w", page, err)
	}
	return Decode(resp.Body)
}

func (s *Source) pageURL(page int) (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse releases url: %w", err)
	}
	q := u.Query()
	q.Set("per_page", strconv.Itoa(s.cfg.PerPage))
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
