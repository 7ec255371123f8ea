package platform

import "context"

// TradeOffer is one active incoming trade offer (spec §4.4's input to
// Trading.checkTrades). Not named in spec §6's minimum-surface table,
// but required by it implicitly ("accepts/declines incoming trade
// offers" has no meaning without a way to list them).
type TradeOffer struct {
	ID                 string          `msgpack:"id"`
	PartnerID          uint64          `msgpack:"partner_id"`
	ItemsToReceive     []InventoryItem `msgpack:"items_to_receive"`
	ItemsToGive        []InventoryItem `msgpack:"items_to_give"`
	ConfirmationNeeded bool            `msgpack:"confirmation_needed"`
}

// FetchActiveOffers lists the account's active incoming trade offers.
func (c *Client) FetchActiveOffers(ctx context.Context) ([]TradeOffer, error) {
	var resp struct {
		Offers []TradeOffer `msgpack:"offers"`
	}
	err := c.call(ctx, "GetActiveTradeOffers", struct{}{}, &resp)
	return resp.Offers, err
}

func (c *Client) AcceptOffer(ctx context.Context, offerID string) (bool, error) {
	req := struct {
		OfferID string `msgpack:"offer_id"`
	}{OfferID: offerID}
	var resp struct {
		OK bool `msgpack:"ok"`
	}
	err := c.call(ctx, "AcceptTradeOffer", req, &resp)
	return resp.OK, err
}

func (c *Client) DeclineOffer(ctx context.Context, offerID string) (bool, error) {
	req := struct {
		OfferID string `msgpack:"offer_id"`
	}{OfferID: offerID}
	var resp struct {
		OK bool `msgpack:"ok"`
	}
	err := c.call(ctx, "DeclineTradeOffer", req, &resp)
	return resp.OK, err
}
