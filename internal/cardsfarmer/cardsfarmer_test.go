package cardsfarmer

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePages struct {
	mu          sync.Mutex
	badgeHTML   map[int]string
	cardsHTML   map[int64][]string // successive responses per appID
	cardsCalled map[int64]int
}

func newFakePages() *fakePages {
	return &fakePages{
		badgeHTML:   map[int]string{},
		cardsHTML:   map[int64][]string{},
		cardsCalled: map[int64]int{},
	}
}

func (f *fakePages) GetBadgePage(ctx context.Context, page int) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(f.badgeHTML[page]))
}

func (f *fakePages) GetGameCardsPage(ctx context.Context, appID int64) (*goquery.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seq := f.cardsHTML[appID]
	idx := f.cardsCalled[appID]
	if idx >= len(seq) {
		idx = len(seq) - 1
	}
	f.cardsCalled[appID]++
	return goquery.NewDocumentFromReader(strings.NewReader(seq[idx]))
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls [][]int64
}

func (n *fakeNotifier) PlayGames(ctx context.Context, appIDs []int64, customName string, appearOffline bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, append([]int64(nil), appIDs...))
	return nil
}

type fakeCallbacks struct {
	mu      sync.Mutex
	results []bool
	done    chan struct{}
}

func newFakeCallbacks() *fakeCallbacks { return &fakeCallbacks{done: make(chan struct{}, 8)} }

func (c *fakeCallbacks) OnFarmingFinished(success bool) {
	c.mu.Lock()
	c.results = append(c.results, success)
	c.mu.Unlock()
	c.done <- struct{}{}
}

func badgeRow(appID int64, hours string) string {
	return `<div class="badge_row">
		<div class="badge_title_stats_drops">drops</div>
		<a class="badge_row_overlay" href="https://example/my/gamecards/` + strconv.FormatInt(appID, 10) + `/"></a>
		<div class="badge_title_stats_playtime">` + hours + ` hrs on record</div>
	</div>`
}

func TestIsAnythingToFarm_ParsesBadgeRowsAndSkipsBlacklist(t *testing.T) {
	pages := newFakePages()
	pages.badgeHTML[1] = `<html><body>` + badgeRow(440, "3.2") + badgeRow(570, "0.5") + `</body></html>`

	games, err := IsAnythingToFarm(context.Background(), pages, map[int64]struct{}{570: {}})
	require.NoError(t, err)
	assert.Equal(t, map[int64]float64{440: 3.2}, games)
}

func TestFarmer_StartIsIdempotent(t *testing.T) {
	pages := newFakePages()
	pages.badgeHTML[1] = `<html><body>` + badgeRow(440, "3.2") + `</body></html>`
	pages.cardsHTML[440] = []string{cardsPage(0)}

	notifier := &fakeNotifier{}
	callbacks := newFakeCallbacks()
	f := New(pages, notifier, callbacks, Config{FarmingDelay: time.Millisecond, MaxFarmingTime: time.Minute}, nil)

	f.Start(context.Background())
	f.Start(context.Background()) // second call should be a no-op

	select {
	case <-callbacks.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for farming to finish")
	}
}

func TestFarmer_StopIsNoOpWhenNotRunning(t *testing.T) {
	pages := newFakePages()
	f := New(pages, &fakeNotifier{}, newFakeCallbacks(), Config{FarmingDelay: time.Millisecond, MaxFarmingTime: time.Minute}, nil)
	f.Stop() // must not panic or block
	assert.False(t, f.IsFarming())
}

func TestFarmer_ManualModeRoundTrip(t *testing.T) {
	pages := newFakePages()
	pages.badgeHTML[1] = `<html><body></body></html>`
	callbacks := newFakeCallbacks()
	f := New(pages, &fakeNotifier{}, callbacks, Config{FarmingDelay: time.Millisecond, MaxFarmingTime: time.Minute}, nil)

	f.SwitchToManualMode(context.Background(), true)
	assert.True(t, f.IsManualMode())

	f.SwitchToManualMode(context.Background(), false)
	assert.False(t, f.IsManualMode())

	select {
	case <-callbacks.done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected exactly one start to run after leaving manual mode")
	}
}

func cardsPage(remaining int) string {
	return `<html><body><div class="progress_info_bold">` + strconv.Itoa(remaining) + ` card drops remaining</div></body></html>`
}
