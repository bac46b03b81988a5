// Package listings scrapes dealer inventory pages into VIN listing records.
package listings

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/dealerai/backend/internal/contracts"
	"github.com/wonny/dealerai/backend/pkg/config"
	"github.com/wonny/dealerai/backend/pkg/httputil"
	"github.com/wonny/dealerai/backend/pkg/logger"
)

// maxListings 페이지당 최대 레코드 수
const maxListings = 1000

// vinPattern 17자리, I/O/Q 제외
var vinPattern = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)

// Scraper implements contracts.ListingSource over inventory HTML.
// Vehicles are elements carrying data-vin; price, mileage, availability and
// update time come from data attributes, falling back to .price, .mileage
// and time[datetime] children.
// ⭐ SSOT: 재고 페이지 파싱은 여기서만
type Scraper struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	now        func() time.Time
}

var _ contracts.ListingSource = (*Scraper)(nil)

// NewScraper creates a new inventory scraper
func NewScraper(httpClient *httputil.Client, log *logger.Logger) *Scraper {
	return &Scraper{
		httpClient: httpClient,
		logger:     log,
		now:        time.Now,
	}
}

// NewFromConfig builds a scraper with its own HTTP client
func NewFromConfig(cfg config.ListingsConfig, log *logger.Logger) *Scraper {
	hc := httputil.New("listings", 30*time.Second, log).
		WithRate(2, 2).
		WithHeader("User-Agent", cfg.UserAgent)
	return NewScraper(hc, log)
}

// FetchListings downloads an inventory page and parses its vehicles
func (s *Scraper) FetchListings(ctx context.Context, pageURL string) ([]contracts.ListingRecord, error) {
	resp, err := s.httpClient.Get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &httputil.StatusError{StatusCode: resp.StatusCode, URL: pageURL}
	}

	fetchedAt := s.now()
	if lm, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		fetchedAt = lm
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse inventory page: %w", err)
	}

	records := ParseDocument(doc, fetchedAt)
	s.logger.WithFields(map[string]interface{}{
		"url":      pageURL,
		"listings": len(records),
	}).Debug("Scraped inventory page")

	return records, nil
}

// ParseDocument extracts listing records; fallback stamps records without
// an update time. Invalid or duplicate VINs are skipped.
func ParseDocument(doc *goquery.Document, fallback time.Time) []contracts.ListingRecord {
	var records []contracts.ListingRecord
	seen := make(map[string]bool)

	doc.Find("[data-vin]").EachWithBreak(func(_ int, item *goquery.Selection) bool {
		vin := strings.ToUpper(strings.TrimSpace(item.AttrOr("data-vin", "")))
		if !vinPattern.MatchString(vin) || seen[vin] {
			return true
		}
		seen[vin] = true

		rec := contracts.ListingRecord{
			VIN:       vin,
			Title:     strings.TrimSpace(item.Find(".title").First().Text()),
			Price:     parseAmount(attrOrText(item, "data-price", ".price")),
			Mileage:   parseAmount(attrOrText(item, "data-mileage", ".mileage")),
			Available: parseAvailable(item),
			UpdatedAt: parseUpdated(item, fallback),
		}
		records = append(records, rec)
		return len(records) < maxListings
	})

	return records
}

func attrOrText(item *goquery.Selection, attr, selector string) string {
	if v, ok := item.Attr(attr); ok {
		return v
	}
	return item.Find(selector).First().Text()
}

// parseAmount reads "$23,995" or "41,200 mi"; 0 when absent
func parseAmount(s string) float64 {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	n, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func parseAvailable(item *goquery.Selection) bool {
	if v, ok := item.Attr("data-available"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && b
	}
	status := strings.ToLower(item.Find(".status").First().Text())
	return !strings.Contains(status, "sold") && !strings.Contains(status, "pending")
}

func parseUpdated(item *goquery.Selection, fallback time.Time) time.Time {
	candidates := []string{
		item.AttrOr("data-updated", ""),
		item.Find("time[datetime]").First().AttrOr("datetime", ""),
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(c)); err == nil {
			return t.UTC()
		}
	}
	return fallback.UTC()
}
