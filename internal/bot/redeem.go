package bot

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var keyPattern = regexp.MustCompile(`^[0-9A-Z]{4,5}-[0-9A-Z]{4,5}-[0-9A-Z]{4,5}(?:-[0-9A-Z]{4,5}(?:-[0-9A-Z]{4,5})?)?$`)

// ValidKeyShape reports whether key matches the platform's cd-key
// shape, without submitting it anywhere. Exported for offline
// validation tooling (cmd/keycheck).
func ValidKeyShape(key string) bool {
	return keyPattern.MatchString(strings.ToUpper(strings.TrimSpace(key)))
}

// keyOutcome classifies one redeemKey attempt (spec §4.6).
type keyOutcome int

const (
	outcomeOK keyOutcome = iota
	outcomeDuplicatedKey
	outcomeInvalidKey
	outcomeAlreadyOwned
	outcomeBaseGameRequired
	outcomeOnCooldown
	outcomeRegionLocked
	outcomeTimeout
	outcomeUnknown
)

func (o keyOutcome) terminal() bool {
	switch o {
	case outcomeOK, outcomeDuplicatedKey, outcomeInvalidKey:
		return true
	default:
		return false
	}
}

func (o keyOutcome) String() string {
	switch o {
	case outcomeOK:
		return "OK"
	case outcomeDuplicatedKey:
		return "DuplicatedKey"
	case outcomeInvalidKey:
		return "InvalidKey"
	case outcomeAlreadyOwned:
		return "AlreadyOwned"
	case outcomeBaseGameRequired:
		return "BaseGameRequired"
	case outcomeOnCooldown:
		return "OnCooldown"
	case outcomeRegionLocked:
		return "RegionLocked"
	case outcomeTimeout:
		return "Timeout!"
	default:
		return "Unknown"
	}
}

func classifyResultCode(code string) keyOutcome {
	switch code {
	case "OK":
		return outcomeOK
	case "DuplicateActivationCode":
		return outcomeDuplicatedKey
	case "InvalidKey":
		return outcomeInvalidKey
	case "AlreadyOwned":
		return outcomeAlreadyOwned
	case "BaseGameRequired":
		return outcomeBaseGameRequired
	case "RateLimited":
		return outcomeOnCooldown
	case "RegionLocked":
		return outcomeRegionLocked
	default:
		return outcomeUnknown
	}
}

// splitKeys normalizes the raw !redeem input (commas and newlines as
// separators), trims and uppercases each candidate, and returns every
// non-blank one in order. Shape validation is left to redeemKeys, which
// reports malformed keys as InvalidKey.
func splitKeys(input string) []string {
	input = strings.ReplaceAll(input, ",", "\n")
	var keys []string
	for _, line := range strings.Split(input, "\n") {
		key := strings.ToUpper(strings.TrimSpace(line))
		if key == "" {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// redeemLogEntry is one rendered output line (spec §4.6's
// "<botName> Key: K | Status: S | Items: I").
type redeemLogEntry struct {
	botName string
	key     string
	status  keyOutcome
	items   string
}

func (e redeemLogEntry) String() string {
	items := e.items
	if items == "" {
		items = "-"
	}
	return fmt.Sprintf("%s Key: %s | Status: %s | Items: %s", e.botName, e.key, e.status, items)
}

// redeemKeys drives the pipeline described in spec §4.6. others is
// empty when the bot has no Fleet or no sibling bots, in which case
// forwarding and distribution do nothing. runID tags every log line emitted for this invocation so a
// reader can grep one !redeem call out of an interleaved log stream.
func (b *Instance) redeemKeys(ctx context.Context, rawInput string) string {
	runID := uuid.NewString()[:8]
	keys := splitKeys(rawInput)

	var lines []string
	current := b
	others := b.others()
	nextBot := 0

	for _, key := range keys {
		if !keyPattern.MatchString(key) {
			lines = append(lines, redeemLogEntry{botName: current.name, key: key, status: outcomeInvalidKey}.String())
			continue
		}

		outcome, items := current.redeemOne(ctx, key)
		lines = append(lines, redeemLogEntry{botName: current.name, key: key, status: outcome, items: items}.String())

		if outcome.terminal() {
			if current.cfg.DistributeKeys && len(others) > 0 {
				current = others[nextBot%len(others)]
				nextBot++
			}
			continue
		}

		if current.cfg.ForwardKeysToOtherBots && outcome != outcomeTimeout {
			for _, other := range others {
				outcome, items = other.redeemOne(ctx, key)
				lines = append(lines, redeemLogEntry{botName: other.name, key: key, status: outcome, items: items}.String())
				if outcome.terminal() {
					break
				}
			}
		}

		if current.cfg.DistributeKeys && len(others) > 0 {
			current = others[nextBot%len(others)]
			nextBot++
		}
	}

	b.logf("redeem run %s processed %d keys", runID, len(keys))
	return strings.Join(lines, "\n")
}

func (b *Instance) others() []*Instance {
	if b.deps.Fleet == nil {
		return nil
	}
	return b.deps.Fleet.Others(b.name)
}

// redeemOne issues a single redeemKey RPC, translating a timeout or a
// disconnected client into the Timeout! outcome rather than an error
// (spec §4.6: "Timeout (null reply) -> record Timeout! and move on").
func (b *Instance) redeemOne(ctx context.Context, key string) (keyOutcome, string) {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()
	if client == nil {
		return outcomeTimeout, ""
	}

	result, err := client.RedeemKey(ctx, key)
	if err != nil {
		return outcomeTimeout, ""
	}

	outcome := classifyResultCode(result.PurchaseResult)
	return outcome, strings.Join(result.Items, ", ")
}
