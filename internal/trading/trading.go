// Package trading implements incoming trade-offer triage and outbound
// loot sending (spec §4.4). checkTrades is serialized per bot (at most
// one running, spec §5); sendLoot settles, then accepts the
// confirmations it caused.
package trading

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"cardfarmd/internal/mobileauth"
)

// Item is one inventory entry this package reasons about (cards, foil
// cards, booster packs per spec §4.4), mirroring
// internal/platform.InventoryItem's shape without importing it, to
// keep this package testable without a real web session.
type Item struct {
	AssetID   string
	AppID     int64
	ContextID int64
	Tags      []string
}

// hasTag reports whether the item carries the given steamTradingType
// tag category (spec §4.4).
func (it Item) hasTag(tag string) bool {
	for _, t := range it.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Offer is one active incoming trade offer.
type Offer struct {
	ID              string
	PartnerID       uint64
	ItemsToReceive  []Item
	ItemsToGive     []Item
	ConfirmationNeeded bool
}

// OffersSource is the narrow surface this package needs to list and
// act on incoming trade offers.
type OffersSource interface {
	FetchActiveOffers(ctx context.Context) ([]Offer, error)
	AcceptOffer(ctx context.Context, offerID string) (bool, error)
	DeclineOffer(ctx context.Context, offerID string) (bool, error)
}

// Inventory is the narrow surface this package needs to build an
// outbound loot offer.
type Inventory interface {
	GetMyInventory(ctx context.Context, tradableOnly bool) ([]Item, error)
	SendTradeOffer(ctx context.Context, recipientID uint64, items []Item, tradeToken string) (offerID string, accepted bool, err error)
}

// Confirmer is the mobileauth surface this package drives to accept
// the specific confirmation a trade produced. *mobileauth.Client
// satisfies this directly.
type Confirmer interface {
	FetchConfirmations(ctx context.Context) ([]mobileauth.Confirmation, error)
	GetConfirmationDetails(ctx context.Context, c mobileauth.Confirmation) (mobileauth.Confirmation, error)
	Handle(ctx context.Context, c mobileauth.Confirmation, accept bool) (bool, error)
}

// WishlistEntry pins which steamTradingType tag categories this bot is
// willing to receive via trade (spec §4.4: "implementation-defined but
// MUST honor steamTradingType tag category").
type WishlistEntry struct {
	AppID       int64
	TradingType string
}

// Config is the per-bot trading configuration.
type Config struct {
	MasterID    uint64
	TradeToken  string
	Wishlist    []WishlistEntry
	SettleDelay time.Duration // brief pause between sendLoot and its confirmation sweep
	LogWarn     func(format string, args ...any)
}

// Trader drives checkTrades and sendLoot for one bot.
type Trader struct {
	offers    OffersSource
	inventory Inventory
	confirmer Confirmer
	cfg       Config

	checkMu sync.Mutex
}

func New(offers OffersSource, inventory Inventory, confirmer Confirmer, cfg Config) *Trader {
	if cfg.LogWarn == nil {
		cfg.LogWarn = func(string, ...any) {}
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = 2 * time.Second
	}
	return &Trader{offers: offers, inventory: inventory, confirmer: confirmer, cfg: cfg}
}

// CheckTrades fetches active incoming offers and decides each one
// (spec §4.4): master's offers are accepted outright; offers that give
// us nothing while we give something are declined; pure donations (we
// give nothing) are accepted; everything else is evaluated against the
// wishlist. Serialized: a second concurrent call is a no-op while one
// is already in flight (spec §5).
func (t *Trader) CheckTrades(ctx context.Context) error {
	if !t.checkMu.TryLock() {
		return nil
	}
	defer t.checkMu.Unlock()

	offers, err := t.offers.FetchActiveOffers(ctx)
	if err != nil {
		return fmt.Errorf("trading: fetch offers: %w", err)
	}

	// Every offer in the batch is acted on regardless of earlier
	// per-offer failures; errors are aggregated rather than aborting
	// the rest of the batch.
	var result *multierror.Error
	for _, offer := range offers {
		accept := t.decide(offer)
		if !accept {
			if _, err := t.offers.DeclineOffer(ctx, offer.ID); err != nil {
				result = multierror.Append(result, fmt.Errorf("decline %s: %w", offer.ID, err))
			}
			continue
		}
		if _, err := t.offers.AcceptOffer(ctx, offer.ID); err != nil {
			result = multierror.Append(result, fmt.Errorf("accept %s: %w", offer.ID, err))
			continue
		}
		if offer.ConfirmationNeeded {
			t.confirmOfferByID(ctx, offer.ID)
		}
	}
	return result.ErrorOrNil()
}

// decide implements spec §4.4's accept policy.
func (t *Trader) decide(offer Offer) bool {
	if offer.PartnerID == t.cfg.MasterID {
		return true
	}
	givesNothing := len(offer.ItemsToGive) == 0
	receivesNothing := len(offer.ItemsToReceive) == 0
	if !receivesNothing && givesNothing {
		return true // pure donation toward us
	}
	if receivesNothing && !givesNothing {
		return false // we'd give something for nothing
	}
	return t.matchesWishlist(offer)
}

func (t *Trader) matchesWishlist(offer Offer) bool {
	if len(t.cfg.Wishlist) == 0 {
		return false
	}
	for _, item := range offer.ItemsToReceive {
		for _, want := range t.cfg.Wishlist {
			if item.AppID == want.AppID && item.hasTag(want.TradingType) {
				return true
			}
		}
	}
	return false
}

// confirmOfferByID finds the pending confirmation whose creator-id is
// this specific trade-offer-id and accepts only that one (spec §4.4:
// "invoke Mobile Authenticator accept for that specific
// trade-offer-id only").
func (t *Trader) confirmOfferByID(ctx context.Context, offerID string) {
	confs, err := t.confirmer.FetchConfirmations(ctx)
	if err != nil {
		t.cfg.LogWarn("trading: fetch confirmations: %v", err)
		return
	}
	for _, c := range confs {
		c, err := t.confirmer.GetConfirmationDetails(ctx, c)
		if err != nil {
			continue
		}
		if c.Type != mobileauth.ConfirmationTrade || c.CreatorID != offerID {
			continue
		}
		if _, err := t.confirmer.Handle(ctx, c, true); err != nil {
			t.cfg.LogWarn("trading: confirm %s: %v", offerID, err)
		}
		return
	}
}

// SendLoot enumerates inventory (cards, foil cards, booster packs),
// sends a single outbound offer to master, then after a brief settle
// delay accepts the trade-type confirmation whose creator-id is that
// offer's id (spec §4.4). Other pending trade confirmations, including
// ones whose other party is master, are left pending, and nothing is
// confirmed when SendTradeOffer returns no offer id.
func (t *Trader) SendLoot(ctx context.Context) error {
	items, err := t.inventory.GetMyInventory(ctx, true)
	if err != nil {
		return fmt.Errorf("trading: inventory: %w", err)
	}
	loot := filterLootable(items)
	if len(loot) == 0 {
		return nil
	}

	offerID, ok, err := t.inventory.SendTradeOffer(ctx, t.cfg.MasterID, loot, t.cfg.TradeToken)
	if err != nil {
		return fmt.Errorf("trading: send loot: %w", err)
	}
	if !ok {
		return nil
	}

	select {
	case <-time.After(t.cfg.SettleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	if offerID != "" {
		t.confirmOfferByID(ctx, offerID)
	}
	return nil
}

// lootTags are the steamTradingType categories eligible for sendLoot
// (spec §4.4: "cards + foil cards + booster packs").
var lootTags = map[string]struct{}{
	"trading_card":       {},
	"trading_card_foil":  {},
	"booster_pack":       {},
}

func filterLootable(items []Item) []Item {
	var out []Item
	for _, it := range items {
		for _, tag := range it.Tags {
			if _, ok := lootTags[tag]; ok {
				out = append(out, it)
				break
			}
		}
	}
	return out
}
