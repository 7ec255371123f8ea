package cardsfarmer

import "context"

// complexSoloThresholdHours is the boundary the Complex algorithm
// splits gamesToFarm on (spec §4.3): games at or above this many
// accumulated hours are farmed solo, everything else batched.
const complexSoloThresholdHours = 2.0

// maxBatchSize is the platform's concurrent-play cap (spec §3/§8).
const maxBatchSize = 32

// runComplex implements the restricted algorithm (spec §4.3): while
// gamesToFarm is non-empty, split into soloSet (hours >= 2) and
// multiSet (the complement). Solo members are farmed one at a time to
// completion; if the solo set is empty, the multiSet is farmed in
// batches of up to maxBatchSize until the batch's largest accumulated
// hours reach the solo threshold (see FarmHours).
func (f *Farmer) runComplex(ctx context.Context) {
	for {
		solo, multi := f.splitSets()
		if len(solo) == 0 && len(multi) == 0 {
			return
		}
		if len(solo) > 0 {
			for _, appID := range solo {
				if !f.isKeepFarming() {
					return
				}
				if !f.FarmSolo(ctx, appID) {
					return
				}
				f.removeGame(appID)
			}
			continue
		}

		batch := multi
		if len(batch) > maxBatchSize {
			batch = batch[:maxBatchSize]
		}
		if !f.FarmHours(ctx, batch) {
			return
		}
		f.removeCompletedBatch(batch)
	}
}

func (f *Farmer) splitSets() (solo, multi []int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, hours := range f.gamesToFarm {
		if hours >= complexSoloThresholdHours {
			solo = append(solo, id)
		} else {
			multi = append(multi, id)
		}
	}
	return solo, multi
}

// removeCompletedBatch drops every batch member that has reached the
// solo threshold; members still below it remain in gamesToFarm for the
// next round (possibly re-batched with newly discovered games).
func (f *Farmer) removeCompletedBatch(batch []int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range batch {
		if f.gamesToFarm[id] >= complexSoloThresholdHours {
			delete(f.gamesToFarm, id)
			delete(f.currentlyFarming, id)
		}
	}
}
