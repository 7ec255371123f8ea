package bot

import (
	"context"

	"cardfarmd/internal/platform"
	"cardfarmd/internal/trading"
)

// The adapters below translate between internal/platform's wire types
// and internal/trading's package-local types, keeping trading free of
// an import-time dependency on platform (the same decoupling already
// used between platform and mobileauth).

type tradeOffersAdapter struct{ client *platform.Client }

func (a tradeOffersAdapter) FetchActiveOffers(ctx context.Context) ([]trading.Offer, error) {
	raw, err := a.client.FetchActiveOffers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]trading.Offer, len(raw))
	for i, o := range raw {
		out[i] = trading.Offer{
			ID:                 o.ID,
			PartnerID:          o.PartnerID,
			ItemsToReceive:     toTradingItems(o.ItemsToReceive),
			ItemsToGive:        toTradingItems(o.ItemsToGive),
			ConfirmationNeeded: o.ConfirmationNeeded,
		}
	}
	return out, nil
}

func (a tradeOffersAdapter) AcceptOffer(ctx context.Context, offerID string) (bool, error) {
	return a.client.AcceptOffer(ctx, offerID)
}

func (a tradeOffersAdapter) DeclineOffer(ctx context.Context, offerID string) (bool, error) {
	return a.client.DeclineOffer(ctx, offerID)
}

type inventoryAdapter struct{ web *platform.WebSession }

func (a inventoryAdapter) GetMyInventory(ctx context.Context, tradableOnly bool) ([]trading.Item, error) {
	items, err := a.web.GetMyInventory(ctx, tradableOnly)
	if err != nil {
		return nil, err
	}
	return toTradingItems(items), nil
}

func (a inventoryAdapter) SendTradeOffer(ctx context.Context, recipientID uint64, items []trading.Item, tradeToken string) (string, bool, error) {
	platformItems := make([]platform.InventoryItem, len(items))
	for i, it := range items {
		platformItems[i] = platform.InventoryItem{AssetID: it.AssetID, AppID: it.AppID, ContextID: it.ContextID, Tags: it.Tags}
	}
	return a.web.SendTradeOffer(ctx, recipientID, platformItems, tradeToken)
}

func toTradingItems(items []platform.InventoryItem) []trading.Item {
	out := make([]trading.Item, len(items))
	for i, it := range items {
		out[i] = trading.Item{AssetID: it.AssetID, AppID: it.AppID, ContextID: it.ContextID, Tags: it.Tags}
	}
	return out
}
