package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

// maxHTTPRetries matches spec §5: "a small retry count (typically 5)
// with a uniform back-off of try again immediately."
const maxHTTPRetries = 5

// WebSession is the HTTP/HTML half of the Platform Client (spec §6's
// webSession.* operations): badge pages, card pages, inventory,
// trade-offer send, gift list/accept, group join, owned-games list. It is
// rate-limited independently of the process-wide login/gift gates in
// internal/ratelimit — this is plain outbound-HTTP throttling, grounded
// on the pack's golang.org/x/time/rate convention rather than the
// teacher's gate-with-delay (that shape is reserved for the two
// process-wide sensitive operations spec §4.1 names).
type WebSession struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter

	steamID  uint64
	universe int32
}

// NewWebSession constructs a session bound to baseURL, limited to
// reqsPerSecond outbound requests.
func NewWebSession(baseURL string, reqsPerSecond float64, timeout time.Duration) *WebSession {
	return &WebSession{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(reqsPerSecond), 1),
	}
}

// Init bootstraps the web session from a freshly logged-in identity
// (spec §4.5's webSession.init(steamId, universe, nonce, parentalPin)).
func (w *WebSession) Init(ctx context.Context, steamID uint64, universe int32, nonce, parentalPIN string) (bool, error) {
	w.steamID, w.universe = steamID, universe
	form := url.Values{
		"steamid": {strconv.FormatUint(steamID, 10)},
		"nonce":   {nonce},
	}
	if parentalPIN != "" {
		form.Set("parental_pin", parentalPIN)
	}
	resp, err := w.postForm(ctx, "/login/authenticate", form)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func (w *WebSession) get(ctx context.Context, path string) (*http.Response, error) {
	return w.doWithRetry(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+path, nil)
	})
}

func (w *WebSession) postForm(ctx context.Context, path string, form url.Values) (*http.Response, error) {
	return w.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+path, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
}

// doWithRetry applies the rate limiter then retries transport failures
// with no back-off, per spec §5, making at most maxHTTPRetries attempts
// in all.
func (w *WebSession) doWithRetry(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxHTTPRetries; attempt++ {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := build()
		if err != nil {
			return nil, err
		}
		resp, err := w.http.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("platform: web request failed after %d attempts: %w", maxHTTPRetries, lastErr)
}

// GetBadgePage fetches and parses badge page n (1-indexed), returning
// the parsed document for discovery.go to walk.
func (w *WebSession) GetBadgePage(ctx context.Context, page int) (*goquery.Document, error) {
	resp, err := w.get(ctx, fmt.Sprintf("/my/badges?p=%d", page))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("platform: badge page %d: status %d", page, resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// GetGameCardsPage fetches the per-game card-drop page used by the
// Cards Farmer's poll loop (spec §4.3's "query the game's card page").
func (w *WebSession) GetGameCardsPage(ctx context.Context, appID int64) (*goquery.Document, error) {
	resp, err := w.get(ctx, fmt.Sprintf("/my/gamecards/%d", appID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("platform: cards page %d: status %d", appID, resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// InventoryItem is one tradable item (spec §6's getMyInventory; §4.4
// enumerates cards, foil cards, booster packs).
type InventoryItem struct {
	AssetID     string
	AppID       int64
	ContextID   int64
	Tags        []string // includes the steamTradingType tag category (spec §4.4)
	Tradable    bool
}

// GetMyInventory returns the account's inventory, optionally filtered
// to tradable items only.
func (w *WebSession) GetMyInventory(ctx context.Context, tradableOnly bool) ([]InventoryItem, error) {
	resp, err := w.get(ctx, fmt.Sprintf("/inventory/%d/753/6", w.steamID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	items, err := parseInventoryJSON(body)
	if err != nil {
		return nil, err
	}
	if !tradableOnly {
		return items, nil
	}
	out := items[:0]
	for _, it := range items {
		if it.Tradable {
			out = append(out, it)
		}
	}
	return out, nil
}

// SendTradeOffer builds and sends a single outbound trade offer
// (spec §4.4's sendLoot): items to give, the recipient, and an
// optional trade token for non-friends.
// SendTradeOffer returns the created offer's id alongside whether the
// send succeeded, so a caller can later target the confirmation that
// offer produces (spec §4.4: "accept for that specific
// trade-offer-id only").
func (w *WebSession) SendTradeOffer(ctx context.Context, recipientID uint64, items []InventoryItem, tradeToken string) (string, bool, error) {
	form := url.Values{
		"partner":    {strconv.FormatUint(recipientID, 10)},
		"item_count": {strconv.Itoa(len(items))},
	}
	for _, it := range items {
		form.Add("assetid", it.AssetID)
	}
	if tradeToken != "" {
		form.Set("trade_offer_access_token", tradeToken)
	}
	resp, err := w.postForm(ctx, "/tradeoffer/new/send", form)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false, nil
	}
	var body struct {
		TradeOfferID string `json:"tradeofferid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", true, nil
	}
	return body.TradeOfferID, true, nil
}

// GetPendingGifts returns the ids of incoming guest passes awaiting
// accept/decline (spec §3's acceptGifts), parsed the same way
// GetBadgePage parses its page: a goquery walk over a data-* attribute.
func (w *WebSession) GetPendingGifts(ctx context.Context) ([]string, error) {
	resp, err := w.get(ctx, "/gifts/")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("platform: gifts page: status %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseGiftIDs(doc), nil
}

// AcceptGift accepts an incoming guest pass (spec §3's acceptGifts).
func (w *WebSession) AcceptGift(ctx context.Context, giftID string) (bool, error) {
	resp, err := w.postForm(ctx, "/gifts/"+giftID+"/accept", url.Values{})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// MarkInventory marks new inventory items as seen (spec §3's
// dismissInventoryNotifications).
func (w *WebSession) MarkInventory(ctx context.Context) error {
	resp, err := w.postForm(ctx, "/my/inventory/markNotificationsSeen", url.Values{})
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// JoinGroup joins the given clan/group id (spec §3's masterClanId and
// the statistics group mentioned in §4.5).
func (w *WebSession) JoinGroup(ctx context.Context, clanID int64) (bool, error) {
	form := url.Values{"action": {"join"}, "groupId": {strconv.FormatInt(clanID, 10)}}
	resp, err := w.postForm(ctx, "/my/groups", form)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// GetOwnedGames returns every owned app-id mapped to its title (spec
// §6), used when a badge row omits the title.
func (w *WebSession) GetOwnedGames(ctx context.Context) (map[int64]string, error) {
	resp, err := w.get(ctx, fmt.Sprintf("/dynamicstore/userdata/?steamid=%d", w.steamID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseOwnedGamesJSON(body)
}
