// Package cardsfarmer implements the Cards Farmer scheduler (spec
// §4.3): discovery of games with unearned card drops, the Simple and
// Complex farming algorithms, and the notification-driven control
// surface (Start/Stop/OnNewItemsNotification/OnNewGameAdded/
// OnDisconnected/SwitchToManualMode).
package cardsfarmer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

// GamePages is the narrow HTML-fetching surface this package needs
// from internal/platform's WebSession, kept as an interface so
// discovery and the farming loops can be tested without real HTTP.
type GamePages interface {
	GetBadgePage(ctx context.Context, page int) (*goquery.Document, error)
	GetGameCardsPage(ctx context.Context, appID int64) (*goquery.Document, error)
}

// badgeEntry is one row parsed off a badge page.
type badgeEntry struct {
	appID int64
	hours float64
}

// IsAnythingToFarm fetches badge page 1, determines the page count
// from its pagination, fetches every remaining page in parallel, and
// merges the results into a fresh gamesToFarm map (spec §4.3). App-ids
// in the global or per-bot blacklist are skipped.
func IsAnythingToFarm(ctx context.Context, pages GamePages, perBotBlacklist map[int64]struct{}) (map[int64]float64, error) {
	first, err := pages.GetBadgePage(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("cardsfarmer: badge page 1: %w", err)
	}
	entries := parseBadgePage(first)
	pageCount := parsePageCount(first)

	if pageCount > 1 {
		g, gctx := errgroup.WithContext(ctx)
		results := make([][]badgeEntry, pageCount+1)
		for p := 2; p <= pageCount; p++ {
			p := p
			g.Go(func() error {
				doc, err := pages.GetBadgePage(gctx, p)
				if err != nil {
					return fmt.Errorf("cardsfarmer: badge page %d: %w", p, err)
				}
				results[p] = parseBadgePage(doc)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for p := 2; p <= pageCount; p++ {
			entries = append(entries, results[p]...)
		}
	}

	games := make(map[int64]float64, len(entries))
	for _, e := range entries {
		if isBlacklisted(e.appID, perBotBlacklist) {
			continue
		}
		games[e.appID] = e.hours
	}
	return games, nil
}

// parseBadgePage extracts (appId, hoursPlayed) for every row carrying
// a "play to earn" drop marker.
func parseBadgePage(doc *goquery.Document) []badgeEntry {
	var out []badgeEntry
	doc.Find(".badge_row").Each(func(_ int, row *goquery.Selection) {
		if row.Find(".badge_title_stats_drops").Length() == 0 {
			return // no remaining card drops advertised for this game
		}
		href, ok := row.Find("a.badge_row_overlay").Attr("href")
		if !ok {
			return
		}
		appID, ok := parseAppIDFromURL(href)
		if !ok {
			return
		}
		hoursText := strings.TrimSpace(row.Find(".badge_title_stats_playtime").Text())
		hours := parseHours(hoursText)
		out = append(out, badgeEntry{appID: appID, hours: hours})
	})
	return out
}

func parseAppIDFromURL(href string) (int64, bool) {
	idx := strings.LastIndex(href, "/gamecards/")
	if idx == -1 {
		return 0, false
	}
	rest := href[idx+len("/gamecards/"):]
	rest = strings.TrimRight(rest, "/")
	if slash := strings.IndexByte(rest, '/'); slash != -1 {
		rest = rest[:slash]
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// parseHours extracts the leading float from strings like
// "3.2 hrs on record".
func parseHours(text string) float64 {
	var numEnd int
	for numEnd < len(text) && (text[numEnd] == '.' || (text[numEnd] >= '0' && text[numEnd] <= '9')) {
		numEnd++
	}
	if numEnd == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(text[:numEnd], 64)
	if err != nil {
		return 0
	}
	return v
}

// parsePageCount reads the highest page number out of the pagination
// control; a badge page with no pagination control has exactly 1 page.
func parsePageCount(doc *goquery.Document) int {
	max := 1
	doc.Find(".pagebtn, .pagelink").Each(func(_ int, s *goquery.Selection) {
		n, err := strconv.Atoi(strings.TrimSpace(s.Text()))
		if err == nil && n > max {
			max = n
		}
	})
	return max
}
