package calendar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/eodsignals/internal/contracts"
	"github.com/wonny/eodsignals/pkg/httputil"
	"github.com/wonny/eodsignals/pkg/logger"
)

// 거래소 휴장일 페이지에서 쓰는 날짜 형식
var holidayDateLayouts = []string{
	contracts.DateLayout,
	"02/01/2006",
	"2006.01.02",
}

// HolidayScraper fetches exchange holidays from an HTML page with a holiday table
// ⭐ SSOT: 휴장일 외부 수집은 이 타입에서만
type HolidayScraper struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	sourceURL  string
}

// NewHolidayScraper creates a holiday scraper for sourceURL
func NewHolidayScraper(httpClient *httputil.Client, log *logger.Logger, sourceURL string) *HolidayScraper {
	return &HolidayScraper{
		httpClient: httpClient,
		logger:     log,
		sourceURL:  sourceURL,
	}
}

// Fetch downloads and parses the holiday table
func (s *HolidayScraper) Fetch(ctx context.Context) ([]contracts.Holiday, error) {
	if s.sourceURL == "" {
		return nil, fmt.Errorf("holiday source url not configured")
	}

	resp, err := s.httpClient.Get(ctx, s.sourceURL)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	holidays, skipped, err := ParseHolidayHTML(string(body))
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"url":     s.sourceURL,
		"count":   len(holidays),
		"skipped": skipped,
	}).Info("Fetched exchange holidays")

	return holidays, nil
}

// Sync fetches holidays and upserts them into store
func (s *HolidayScraper) Sync(ctx context.Context, store contracts.HolidayStore) (int, error) {
	holidays, err := s.Fetch(ctx)
	if err != nil {
		return 0, err
	}
	if len(holidays) == 0 {
		return 0, nil
	}
	if err := store.UpsertHolidays(ctx, holidays); err != nil {
		return 0, fmt.Errorf("failed to upsert holidays: %w", err)
	}
	return len(holidays), nil
}

// ParseHolidayHTML reads every table row whose first cell is a date.
// The second cell, when present, is the holiday name. Rows with unparsable dates are skipped and counted.
func ParseHolidayHTML(html string) ([]contracts.Holiday, int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse holiday html: %w", err)
	}

	var holidays []contracts.Holiday
	seen := make(map[time.Time]struct{})
	skipped := 0

	doc.Find("table tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return // header
		}

		date, ok := parseHolidayDate(cells.Eq(0).Text())
		if !ok {
			skipped++
			return
		}
		if _, dup := seen[date]; dup {
			return
		}
		seen[date] = struct{}{}

		name := ""
		if cells.Length() > 1 {
			name = strings.Join(strings.Fields(cells.Eq(1).Text()), " ")
		}
		holidays = append(holidays, contracts.Holiday{Date: date, Name: name})
	})

	return holidays, skipped, nil
}

func parseHolidayDate(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	for _, layout := range holidayDateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return contracts.Day(t), true
		}
	}
	return time.Time{}, false
}

// Load builds a calendar from the stored holidays in [from, to]
func Load(ctx context.Context, store contracts.HolidayStore, from, to time.Time) (*Calendar, error) {
	holidays, err := store.ListHolidays(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load holidays: %w", err)
	}
	return FromHolidays(holidays), nil
}
