package mobileauth

import (
	"context"
	"fmt"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// ConfirmationType classifies what a pending confirmation protects
// (spec §3).
type ConfirmationType int

const (
	ConfirmationGeneric ConfirmationType = iota
	ConfirmationTrade
	ConfirmationMarket
	ConfirmationOther
)

// Confirmation is one pending 2FA-protected action (spec §3):
// transient, fetched per call, never persisted.
type Confirmation struct {
	ID        string
	Nonce     string
	CreatorID string // maps to a trade-offer id or a market-listing id
	Type      ConfirmationType
}

// Pages is the narrow HTML-fetching surface confirmations.go needs
// from the Platform Client's WebSession, kept as an interface so this
// package has no import-time dependency on internal/platform and can
// be tested with a fake.
type Pages interface {
	FetchConfirmationsPage(ctx context.Context, deviceID, signature string, now int64) (*goquery.Document, error)
	FetchConfirmationDetailsPage(ctx context.Context, id, deviceID, signature string, now int64) (*goquery.Document, error)
	SendConfirmationAction(ctx context.Context, id, nonce, deviceID, signature string, now int64, accept bool) (bool, error)
}

// Client pairs an Authenticator with the page-fetching surface and
// serializes the accept/deny call per spec §4.2/§5 ("the platform
// rejects parallel accepts").
type Client struct {
	auth  *Authenticator
	pages Pages

	acceptMu sync.Mutex
}

func NewClient(auth *Authenticator, pages Pages) *Client {
	return &Client{auth: auth, pages: pages}
}

// Auth returns the underlying Authenticator, letting callers generate
// a login 2FA token (spec §4.2) without this package exposing its
// HMAC internals.
func (c *Client) Auth() *Authenticator {
	return c.auth
}

// FetchConfirmations returns every pending confirmation for this
// account, parsed from the platform's confirmation page.
func (c *Client) FetchConfirmations(ctx context.Context) ([]Confirmation, error) {
	now := c.auth.timeNow()
	sig := c.auth.confirmationSignature("conf", now)
	doc, err := c.pages.FetchConfirmationsPage(ctx, c.auth.DeviceID, sig, now)
	if err != nil {
		return nil, fmt.Errorf("mobileauth: fetch confirmations: %w", err)
	}
	return parseConfirmations(doc), nil
}

// GetConfirmationDetails resolves the creator-id for one confirmation
// by fetching and parsing its details page. Type is left as the list
// page already classified it (data-type covers Trade/Market/Generic;
// the details page only reliably carries the creator-id).
func (c *Client) GetConfirmationDetails(ctx context.Context, conf Confirmation) (Confirmation, error) {
	now := c.auth.timeNow()
	sig := c.auth.confirmationSignature("details"+conf.ID, now)
	doc, err := c.pages.FetchConfirmationDetailsPage(ctx, conf.ID, c.auth.DeviceID, sig, now)
	if err != nil {
		return conf, fmt.Errorf("mobileauth: confirmation details %s: %w", conf.ID, err)
	}
	conf.CreatorID = parseConfirmationDetails(doc)
	return conf, nil
}

// Handle issues a single accept-or-deny call for one confirmation,
// signed with the identity secret. Serialized: at most one Handle call
// per Client runs at a time, satisfying spec §5's per-bot
// serialization of the accept operation.
func (c *Client) Handle(ctx context.Context, conf Confirmation, accept bool) (bool, error) {
	c.acceptMu.Lock()
	defer c.acceptMu.Unlock()

	now := c.auth.timeNow()
	action := "deny"
	if accept {
		action = "accept"
	}
	sig := c.auth.confirmationSignature(action+conf.ID, now)
	ok, err := c.pages.SendConfirmationAction(ctx, conf.ID, conf.Nonce, c.auth.DeviceID, sig, now, accept)
	if err != nil {
		return false, fmt.Errorf("mobileauth: handle confirmation %s: %w", conf.ID, err)
	}
	return ok, nil
}

// AcceptAll fetches every pending confirmation and accepts each that
// passes match. A nil match accepts everything (spec §4.8's periodic
// timer case); a non-nil match filters by type, other-party id (which
// requires a details fetch), or a set of accepted trade-offer ids —
// confirmations that don't match are left pending, not denied.
func (c *Client) AcceptAll(ctx context.Context, match func(Confirmation) bool) ([]Confirmation, error) {
	confs, err := c.FetchConfirmations(ctx)
	if err != nil {
		return nil, err
	}
	var accepted []Confirmation
	for _, conf := range confs {
		if match != nil {
			conf, err = c.GetConfirmationDetails(ctx, conf)
			if err != nil {
				continue // soft failure per spec §7; leave it pending
			}
			if !match(conf) {
				continue
			}
		}
		if ok, err := c.Handle(ctx, conf, true); err == nil && ok {
			accepted = append(accepted, conf)
		}
	}
	return accepted, nil
}

// MatchByType returns a match predicate for AcceptAll that accepts
// only confirmations of the given type.
func MatchByType(t ConfirmationType) func(Confirmation) bool {
	return func(c Confirmation) bool { return c.Type == t }
}

// MatchByTradeOfferIDs returns a match predicate that accepts only
// confirmations whose creator-id is in ids (spec §4.8/§8: "leaves
// pending all confirmations whose details resolve to ids other than
// T").
func MatchByTradeOfferIDs(ids map[string]struct{}) func(Confirmation) bool {
	return func(c Confirmation) bool {
		_, ok := ids[c.CreatorID]
		return ok
	}
}

func parseConfirmations(doc *goquery.Document) []Confirmation {
	var out []Confirmation
	doc.Find("[data-confid]").Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("data-confid")
		nonce, _ := s.Attr("data-key")
		creator, _ := s.Attr("data-creator")
		out = append(out, Confirmation{ID: id, Nonce: nonce, CreatorID: creator, Type: confirmationTypeFromClass(s)})
	})
	return out
}

func confirmationTypeFromClass(s *goquery.Selection) ConfirmationType {
	typAttr, _ := s.Attr("data-type")
	switch typAttr {
	case "2":
		return ConfirmationTrade
	case "3":
		return ConfirmationMarket
	case "1":
		return ConfirmationGeneric
	default:
		return ConfirmationOther
	}
}

func parseConfirmationDetails(doc *goquery.Document) (creatorID string) {
	sel := doc.Find(".tradeoffer, [data-creator]").First()
	creatorID, _ = sel.Attr("data-creator")
	return creatorID
}
