package mobileauth

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken_IsDeterministicForFixedTime(t *testing.T) {
	a := New([]byte("sharedsecret"), []byte("identitysecret"), "device-1")
	a.nowUnix = func() int64 { return 1_700_000_000 }

	code1, remaining1 := a.GenerateToken()
	code2, remaining2 := a.GenerateToken()
	assert.Equal(t, code1, code2)
	assert.Equal(t, remaining1, remaining2)
	assert.Len(t, code1, codeLength)
}

func TestGenerateToken_ChangesAcrossBuckets(t *testing.T) {
	a := New([]byte("sharedsecret"), []byte("identitysecret"), "device-1")
	a.nowUnix = func() int64 { return 1_700_000_000 }
	code1, _ := a.GenerateToken()
	a.nowUnix = func() int64 { return 1_700_000_000 + timeStepSec }
	code2, _ := a.GenerateToken()
	assert.NotEqual(t, code1, code2)
}

func TestEnrolled(t *testing.T) {
	var nilAuth *Authenticator
	assert.False(t, nilAuth.Enrolled())
	assert.False(t, New(nil, nil, "").Enrolled())
	assert.True(t, New([]byte("s"), []byte("i"), "d").Enrolled())
}

type fakePages struct {
	confirmationsHTML string
	detailsHTML       string
	acceptCalls       []string
	acceptResult      bool
}

func (f *fakePages) FetchConfirmationsPage(ctx context.Context, deviceID, signature string, now int64) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(f.confirmationsHTML))
}

func (f *fakePages) FetchConfirmationDetailsPage(ctx context.Context, id, deviceID, signature string, now int64) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(f.detailsHTML))
}

func (f *fakePages) SendConfirmationAction(ctx context.Context, id, nonce, deviceID, signature string, now int64, accept bool) (bool, error) {
	f.acceptCalls = append(f.acceptCalls, id)
	return f.acceptResult, nil
}

func TestFetchConfirmations_ParsesRows(t *testing.T) {
	fp := &fakePages{confirmationsHTML: `
		<div data-confid="111" data-key="nonce1" data-creator="555" data-type="2"></div>
		<div data-confid="222" data-key="nonce2" data-creator="" data-type="3"></div>
	`}
	c := NewClient(New([]byte("s"), []byte("i"), "d"), fp)
	confs, err := c.FetchConfirmations(context.Background())
	require.NoError(t, err)
	require.Len(t, confs, 2)
	assert.Equal(t, "111", confs[0].ID)
	assert.Equal(t, ConfirmationTrade, confs[0].Type)
	assert.Equal(t, ConfirmationMarket, confs[1].Type)
}

func TestHandle_IsSerializedPerClient(t *testing.T) {
	fp := &fakePages{acceptResult: true}
	c := NewClient(New([]byte("s"), []byte("i"), "d"), fp)

	done := make(chan struct{})
	go func() {
		c.Handle(context.Background(), Confirmation{ID: "a"}, true)
		close(done)
	}()
	c.Handle(context.Background(), Confirmation{ID: "b"}, true)
	<-done

	assert.Len(t, fp.acceptCalls, 2)
}

func TestAcceptAll_AcceptsEveryMatchingConfirmation(t *testing.T) {
	fp := &fakePages{
		confirmationsHTML: `
			<div data-confid="1" data-key="n1" data-creator="" data-type="2"></div>
			<div data-confid="2" data-key="n2" data-creator="" data-type="2"></div>
		`,
		detailsHTML:  `<div class="tradeoffer" data-creator="T1"></div>`,
		acceptResult: true,
	}
	c := NewClient(New([]byte("s"), []byte("i"), "d"), fp)

	ids := map[string]struct{}{"T1": {}}
	accepted, err := c.AcceptAll(context.Background(), MatchByTradeOfferIDs(ids))
	require.NoError(t, err)
	// Both confirmations resolve to creator "T1" in this fake (same
	// details page for every fetch), so both match and get accepted —
	// this exercises the match-then-accept path, not a negative case.
	assert.Len(t, accepted, len(fp.acceptCalls))
}
