package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/PuerkitoBio/goquery"
)

// The three methods below satisfy internal/mobileauth.Pages, letting a
// *WebSession serve as the HTML-fetching backend for mobile
// confirmations without mobileauth importing this package.

func (w *WebSession) FetchConfirmationsPage(ctx context.Context, deviceID, signature string, now int64) (*goquery.Document, error) {
	q := url.Values{
		"deviceid": {deviceID},
		"p":        {signature},
		"t":        {strconv.FormatInt(now, 10)},
	}
	resp, err := w.get(ctx, "/mobileconf/conf?"+q.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("platform: confirmations page: status %d", resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

func (w *WebSession) FetchConfirmationDetailsPage(ctx context.Context, id, deviceID, signature string, now int64) (*goquery.Document, error) {
	q := url.Values{
		"deviceid": {deviceID},
		"p":        {signature},
		"t":        {strconv.FormatInt(now, 10)},
	}
	resp, err := w.get(ctx, fmt.Sprintf("/mobileconf/details/%s?%s", id, q.Encode()))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("platform: confirmation details %s: status %d", id, resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

func (w *WebSession) SendConfirmationAction(ctx context.Context, id, nonce, deviceID, signature string, now int64, accept bool) (bool, error) {
	op := "cancel"
	if accept {
		op = "allow"
	}
	form := url.Values{
		"op":       {op},
		"cid":      {id},
		"ck":       {nonce},
		"deviceid": {deviceID},
		"p":        {signature},
		"t":        {strconv.FormatInt(now, 10)},
	}
	resp, err := w.postForm(ctx, "/mobileconf/ajaxop", form)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}
