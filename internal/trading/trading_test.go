package trading

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardfarmd/internal/mobileauth"
)

type fakeOffers struct {
	active    []Offer
	accepted  []string
	declined  []string
}

func (f *fakeOffers) FetchActiveOffers(ctx context.Context) ([]Offer, error) {
	return f.active, nil
}

func (f *fakeOffers) AcceptOffer(ctx context.Context, offerID string) (bool, error) {
	f.accepted = append(f.accepted, offerID)
	return true, nil
}

func (f *fakeOffers) DeclineOffer(ctx context.Context, offerID string) (bool, error) {
	f.declined = append(f.declined, offerID)
	return true, nil
}

type fakeInventory struct {
	items     []Item
	sentTo    uint64
	sentItems []Item
	offerID   string
}

func (f *fakeInventory) GetMyInventory(ctx context.Context, tradableOnly bool) ([]Item, error) {
	return f.items, nil
}

func (f *fakeInventory) SendTradeOffer(ctx context.Context, recipientID uint64, items []Item, tradeToken string) (string, bool, error) {
	f.sentTo = recipientID
	f.sentItems = items
	return f.offerID, true, nil
}

type fakeConfirmer struct {
	confs   []mobileauth.Confirmation
	handled []string
}

func (f *fakeConfirmer) FetchConfirmations(ctx context.Context) ([]mobileauth.Confirmation, error) {
	return f.confs, nil
}

func (f *fakeConfirmer) GetConfirmationDetails(ctx context.Context, c mobileauth.Confirmation) (mobileauth.Confirmation, error) {
	return c, nil
}

func (f *fakeConfirmer) Handle(ctx context.Context, c mobileauth.Confirmation, accept bool) (bool, error) {
	f.handled = append(f.handled, c.ID)
	return true, nil
}

func TestCheckTrades_AcceptsMasterOffersOutright(t *testing.T) {
	offers := &fakeOffers{active: []Offer{{ID: "o1", PartnerID: 123, ItemsToGive: []Item{{AssetID: "a"}}}}}
	tr := New(offers, &fakeInventory{}, &fakeConfirmer{}, Config{MasterID: 123})

	require.NoError(t, tr.CheckTrades(context.Background()))
	assert.Equal(t, []string{"o1"}, offers.accepted)
	assert.Empty(t, offers.declined)
}

func TestCheckTrades_DeclinesGiveOnlyOffers(t *testing.T) {
	offers := &fakeOffers{active: []Offer{{ID: "o1", PartnerID: 999, ItemsToGive: []Item{{AssetID: "a"}}}}}
	tr := New(offers, &fakeInventory{}, &fakeConfirmer{}, Config{MasterID: 123})

	require.NoError(t, tr.CheckTrades(context.Background()))
	assert.Equal(t, []string{"o1"}, offers.declined)
}

func TestCheckTrades_AcceptsPureDonations(t *testing.T) {
	offers := &fakeOffers{active: []Offer{{ID: "o1", PartnerID: 999, ItemsToReceive: []Item{{AssetID: "a"}}}}}
	tr := New(offers, &fakeInventory{}, &fakeConfirmer{}, Config{MasterID: 123})

	require.NoError(t, tr.CheckTrades(context.Background()))
	assert.Equal(t, []string{"o1"}, offers.accepted)
}

func TestCheckTrades_EvaluatesByWishlist(t *testing.T) {
	offer := Offer{
		ID:             "o1",
		PartnerID:      999,
		ItemsToReceive: []Item{{AppID: 440, Tags: []string{"trading_card"}}},
		ItemsToGive:    []Item{{AssetID: "mine"}},
	}
	offers := &fakeOffers{active: []Offer{offer}}
	tr := New(offers, &fakeInventory{}, &fakeConfirmer{}, Config{
		MasterID: 123,
		Wishlist: []WishlistEntry{{AppID: 440, TradingType: "trading_card"}},
	})

	require.NoError(t, tr.CheckTrades(context.Background()))
	assert.Equal(t, []string{"o1"}, offers.accepted)
}

func TestCheckTrades_ConfirmsOnlyTheSpecificOffer(t *testing.T) {
	offer := Offer{ID: "o1", PartnerID: 123, ItemsToGive: []Item{{AssetID: "a"}}, ConfirmationNeeded: true}
	offers := &fakeOffers{active: []Offer{offer}}
	confirmer := &fakeConfirmer{confs: []mobileauth.Confirmation{
		{ID: "c1", CreatorID: "o1", Type: mobileauth.ConfirmationTrade},
		{ID: "c2", CreatorID: "other", Type: mobileauth.ConfirmationTrade},
	}}
	tr := New(offers, &fakeInventory{}, confirmer, Config{MasterID: 123})

	require.NoError(t, tr.CheckTrades(context.Background()))
	assert.Equal(t, []string{"c1"}, confirmer.handled)
}

func TestSendLoot_FiltersToLootableTagsAndSendsToMaster(t *testing.T) {
	inv := &fakeInventory{items: []Item{
		{AssetID: "card", Tags: []string{"trading_card"}},
		{AssetID: "gem", Tags: []string{"gem"}},
	}}
	tr := New(&fakeOffers{}, inv, &fakeConfirmer{}, Config{MasterID: 123, SettleDelay: time.Millisecond})

	require.NoError(t, tr.SendLoot(context.Background()))
	assert.Equal(t, uint64(123), inv.sentTo)
	require.Len(t, inv.sentItems, 1)
	assert.Equal(t, "card", inv.sentItems[0].AssetID)
}

func TestSendLoot_NoOpWhenNothingLootable(t *testing.T) {
	inv := &fakeInventory{items: []Item{{AssetID: "gem", Tags: []string{"gem"}}}}
	tr := New(&fakeOffers{}, inv, &fakeConfirmer{}, Config{MasterID: 123})

	require.NoError(t, tr.SendLoot(context.Background()))
	assert.Zero(t, inv.sentTo)
}

func TestSendLoot_ConfirmsOnlyTheOfferItCreated(t *testing.T) {
	inv := &fakeInventory{
		items:   []Item{{AssetID: "card", Tags: []string{"trading_card"}}},
		offerID: "loot-offer-1",
	}
	confirmer := &fakeConfirmer{confs: []mobileauth.Confirmation{
		{ID: "c1", CreatorID: "loot-offer-1", Type: mobileauth.ConfirmationTrade},
		{ID: "c2", CreatorID: "unrelated-offer", Type: mobileauth.ConfirmationTrade},
	}}
	tr := New(&fakeOffers{}, inv, confirmer, Config{MasterID: 123, SettleDelay: time.Millisecond})

	require.NoError(t, tr.SendLoot(context.Background()))
	assert.Equal(t, []string{"c1"}, confirmer.handled)
}
