package platform

import (
	"encoding/json"
	"strconv"

	"github.com/PuerkitoBio/goquery"
)

// wire shapes for the two JSON endpoints WebSession consumes. Parse
// errors here are a soft failure per spec §7 — callers get an error
// back and log it, state is left untouched.

type rawInventoryResponse struct {
	Assets []struct {
		AssetID   string `json:"assetid"`
		AppID     int64  `json:"appid"`
		ContextID int64  `json:"contextid"`
	} `json:"assets"`
	Descriptions []struct {
		AppID     int64  `json:"appid"`
		ContextID int64  `json:"contextid"`
		Tradable  int    `json:"tradable"`
		Tags      []struct {
			Category string `json:"category"`
		} `json:"tags"`
	} `json:"descriptions"`
}

func parseInventoryJSON(body []byte) ([]InventoryItem, error) {
	var raw rawInventoryResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	descByKey := make(map[[2]int64]int, len(raw.Descriptions))
	for i, d := range raw.Descriptions {
		descByKey[[2]int64{d.AppID, d.ContextID}] = i
	}
	items := make([]InventoryItem, 0, len(raw.Assets))
	for _, a := range raw.Assets {
		item := InventoryItem{AssetID: a.AssetID, AppID: a.AppID, ContextID: a.ContextID}
		if i, ok := descByKey[[2]int64{a.AppID, a.ContextID}]; ok {
			d := raw.Descriptions[i]
			item.Tradable = d.Tradable != 0
			for _, t := range d.Tags {
				item.Tags = append(item.Tags, t.Category)
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func parseOwnedGamesJSON(body []byte) (map[int64]string, error) {
	var raw struct {
		RgOwnedApps []int64           `json:"rgOwnedApps"`
		RgAppTitles map[string]string `json:"rgAppTitles"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(raw.RgOwnedApps))
	for _, id := range raw.RgOwnedApps {
		out[id] = raw.RgAppTitles[strconv.FormatInt(id, 10)]
	}
	return out, nil
}

func parseGiftIDs(doc *goquery.Document) []string {
	var ids []string
	doc.Find("[data-giftid]").Each(func(_ int, s *goquery.Selection) {
		if id, ok := s.Attr("data-giftid"); ok {
			ids = append(ids, id)
		}
	})
	return ids
}
