package cardsfarmer

// GlobalBlacklist is the hard-coded set of app-ids the Cards Farmer
// never farms regardless of per-bot configuration (spec §4.3, §9:
// "implementers MUST treat it as a static set injected at build time,
// not derived"). The pack's teacher hard-codes similarly empirical
// constants directly in source (network.go's timing constants); this
// package follows the same convention rather than inventing a config
// surface the spec doesn't define one for.
var GlobalBlacklist = map[int64]struct{}{}

func isBlacklisted(appID int64, perBot map[int64]struct{}) bool {
	if _, ok := GlobalBlacklist[appID]; ok {
		return true
	}
	_, ok := perBot[appID]
	return ok
}
