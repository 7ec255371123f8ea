package cardsfarmer

import "context"

// runSimple implements the unrestricted algorithm (spec §4.3):
// repeatedly pick any remaining app-id, farm it solo to completion,
// remove it, continue until gamesToFarm is empty.
func (f *Farmer) runSimple(ctx context.Context) {
	for {
		appID, ok := f.pickAny()
		if !ok {
			return
		}
		if !f.FarmSolo(ctx, appID) {
			return // keepFarming went false mid-round
		}
		f.removeGame(appID)
	}
}

func (f *Farmer) pickAny() (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id := range f.gamesToFarm {
		return id, true
	}
	return 0, false
}

func (f *Farmer) removeGame(appID int64) {
	f.mu.Lock()
	delete(f.gamesToFarm, appID)
	delete(f.currentlyFarming, appID)
	f.mu.Unlock()
}
