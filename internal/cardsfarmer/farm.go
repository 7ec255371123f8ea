package cardsfarmer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"cardfarmd/internal/clock"
)

// Notifier is the subset of the Platform Client the farming loops
// drive: reporting which app-ids are currently "being played" (spec
// §6's playGames). appearOffline requests that the platform not
// surface this session as online while it reports the games played.
type Notifier interface {
	PlayGames(ctx context.Context, appIDs []int64, customName string, appearOffline bool) error
}

// cardsRemaining parses "N cards remaining" off a game's card page.
func cardsRemaining(ctx context.Context, pages GamePages, appID int64) (int, error) {
	doc, err := pages.GetGameCardsPage(ctx, appID)
	if err != nil {
		return 0, fmt.Errorf("cardsfarmer: card page %d: %w", appID, err)
	}
	return parseCardsRemaining(doc), nil
}

func parseCardsRemaining(doc *goquery.Document) int {
	text := strings.TrimSpace(doc.Find(".progress_info_bold").First().Text())
	if text == "" {
		return 0
	}
	var numEnd int
	for numEnd < len(text) && text[numEnd] >= '0' && text[numEnd] <= '9' {
		numEnd++
	}
	if numEnd == 0 {
		return 0
	}
	n, err := strconv.Atoi(text[:numEnd])
	if err != nil {
		return 0
	}
	return n
}

// FarmSolo farms a single app-id until no drops remain, the per-app
// deadline passes, or keepFarming goes false (spec §4.3). It reports
// success = keepFarming remained true throughout (a deadline cutoff
// still counts as success per spec §8: "a deadline-cut returns success
// — it still ran to completion of its time budget").
func (f *Farmer) FarmSolo(ctx context.Context, appID int64) bool {
	if err := f.notifier.PlayGames(ctx, []int64{appID}, "", f.cfg.AppearOffline); err != nil {
		f.logWarn("playGames(%d): %v", appID, err)
	}

	deadline := f.clock.Now().Add(f.cfg.MaxFarmingTime)
	for {
		if !f.isKeepFarming() {
			return false
		}
		n, err := cardsRemaining(ctx, f.pages, appID)
		if err != nil {
			f.logWarn("cardsRemaining(%d): %v", appID, err)
		} else if n == 0 {
			return true
		}
		if f.clock.Now().After(deadline) {
			return true
		}

		elapsed, _ := clock.SleepOrSignal(ctx, f.clock, f.cfg.FarmingDelay, f.resetSignal)
		f.addElapsedHours(appID, elapsed)
	}
}

// FarmHours farms a batch of app-ids simultaneously until the largest
// accumulated playtime among them reaches 2 hours or keepFarming goes
// false (spec §4.3's Complex-algorithm multiSet batch).
func (f *Farmer) FarmHours(ctx context.Context, appIDs []int64) bool {
	if err := f.notifier.PlayGames(ctx, appIDs, "", f.cfg.AppearOffline); err != nil {
		f.logWarn("playGames(%v): %v", appIDs, err)
	}

	for {
		if !f.isKeepFarming() {
			return false
		}
		if f.maxHoursAmong(appIDs) >= complexSoloThresholdHours {
			return true
		}
		elapsed, _ := clock.SleepOrSignal(ctx, f.clock, f.cfg.FarmingDelay, f.resetSignal)
		for _, id := range appIDs {
			f.addElapsedHours(id, elapsed)
		}
	}
}

func (f *Farmer) maxHoursAmong(appIDs []int64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var max float64
	for _, id := range appIDs {
		if h := f.gamesToFarm[id]; h > max {
			max = h
		}
	}
	return max
}

func (f *Farmer) addElapsedHours(appID int64, elapsed time.Duration) {
	f.mu.Lock()
	f.gamesToFarm[appID] += elapsed.Hours()
	f.mu.Unlock()
}

func (f *Farmer) isKeepFarming() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keepFarming
}
