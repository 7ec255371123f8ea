package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// maxReplyChunk bounds one direct-message reply (spec §4.5: "split
// into chunks of <= (max - 6) characters with an ellipsis
// prefix/suffix between parts"). 6 is reserved for the "..." markers
// on both ends of a continued chunk.
const maxReplyChunk = 2000 - 6

type permission int

const (
	permNone permission = iota
	permMaster
	permOwner
)

// verbPermission is the least privilege required for each recognized
// command (spec §4.5's verb list). Verbs not present here are unknown.
var verbPermission = map[string]permission{
	"2fa":          permMaster,
	"2faok":        permMaster,
	"2fano":        permMaster,
	"api":          permOwner,
	"exit":         permOwner,
	"farm":         permMaster,
	"help":         permMaster,
	"loot":         permMaster,
	"lootall":      permOwner,
	"password":     permMaster,
	"pause":        permMaster,
	"rejoinchat":   permMaster,
	"resume":       permMaster,
	"restart":      permOwner,
	"status":       permMaster,
	"statusall":    permOwner,
	"stop":         permMaster,
	"update":       permOwner,
	"version":      permMaster,
	"addlicense":   permMaster,
	"owns":         permMaster,
	"play":         permMaster,
	"redeem":       permMaster,
	"start":        permMaster,
}

const version = "1.0.0"

// Respond implements spec §4.5's Response(senderId, message) command
// parser. A nil return means "send nothing" (an unauthorized sender, a
// blank message, or plain text from a non-master sender).
func (b *Instance) Respond(ctx context.Context, senderID uint64, message string) *string {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil
	}

	if !strings.HasPrefix(message, "!") {
		if !b.isMaster(senderID) {
			return nil
		}
		reply := b.redeemKeys(ctx, message)
		return &reply
	}

	verb, args := parseVerb(message)
	required, known := verbPermission[verb]
	if !known {
		if !b.isMaster(senderID) {
			return nil
		}
		reply := "ERROR: Unknown command!"
		return &reply
	}
	if !b.authorized(senderID, required) {
		return nil
	}

	reply := b.dispatch(ctx, senderID, verb, args)
	return &reply
}

func parseVerb(message string) (verb string, args []string) {
	fields := strings.Fields(strings.TrimPrefix(message, "!"))
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

func (b *Instance) isMaster(senderID uint64) bool {
	return senderID == b.cfg.MasterID || senderID == b.cfg.OwnerID
}

func (b *Instance) authorized(senderID uint64, required permission) bool {
	switch required {
	case permOwner:
		return senderID == b.cfg.OwnerID
	case permMaster:
		return b.isMaster(senderID)
	default:
		return false
	}
}

func (b *Instance) dispatch(ctx context.Context, senderID uint64, verb string, args []string) string {
	switch verb {
	case "help":
		return helpText()
	case "version":
		return fmt.Sprintf("%s %s", b.name, version)
	case "status":
		return b.statusLine()
	case "statusall":
		return b.statusAllLines()
	case "start":
		b.Start()
		return b.name + " started"
	case "stop":
		b.Stop()
		return b.name + " stopped"
	case "restart":
		b.deps.Fleet.RestartProcess()
		return "restarting"
	case "exit":
		b.deps.Fleet.ExitProcess()
		return "exiting"
	case "update":
		return "update is not implemented in this deployment"
	case "pause":
		b.mu.Lock()
		farmer := b.farmer
		b.mu.Unlock()
		if farmer != nil {
			farmer.SwitchToManualMode(ctx, true)
		}
		return b.name + " paused farming"
	case "resume":
		b.mu.Lock()
		farmer := b.farmer
		b.mu.Unlock()
		if farmer != nil {
			farmer.SwitchToManualMode(ctx, false)
		}
		return b.name + " resumed farming"
	case "farm":
		b.mu.Lock()
		farmer := b.farmer
		b.mu.Unlock()
		if farmer == nil {
			return b.name + " is not ready"
		}
		farmer.Start(ctx)
		return b.name + " farming"
	case "loot":
		b.mu.Lock()
		trader := b.trader
		b.mu.Unlock()
		if trader == nil {
			return b.name + " is not ready"
		}
		if err := trader.SendLoot(ctx); err != nil {
			return fmt.Sprintf("%s loot failed: %v", b.name, err)
		}
		return b.name + " sent loot"
	case "lootall":
		return b.lootAll(ctx)
	case "play":
		return b.playGames(ctx, args)
	case "addlicense":
		return b.addLicense(ctx, args)
	case "owns":
		return b.owns(ctx, args)
	case "redeem":
		return b.redeemKeys(ctx, strings.Join(args, "\n"))
	case "2fa":
		return b.twoFactorToken()
	case "2faok", "2fano":
		b.mu.Lock()
		trader := b.trader
		b.mu.Unlock()
		if trader == nil {
			return b.name + " is not ready"
		}
		if err := trader.CheckTrades(ctx); err != nil {
			return fmt.Sprintf("%s: %v", b.name, err)
		}
		return b.name + " confirmations reviewed"
	case "password":
		return "password changes are not supported over chat"
	case "rejoinchat":
		if b.web != nil && b.cfg.MasterClanID != 0 {
			b.web.JoinGroup(ctx, b.cfg.MasterClanID)
		}
		return b.name + " rejoined chat"
	case "api":
		return b.name + " control API is served over HTTP, not chat"
	default:
		return "ERROR: Unknown command!"
	}
}

func helpText() string {
	verbs := make([]string, 0, len(verbPermission))
	for v := range verbPermission {
		verbs = append(verbs, v)
	}
	return "commands: " + strings.Join(verbs, ", ")
}

func (b *Instance) statusLine() string {
	st := b.Status()
	return fmt.Sprintf("%s: %s farming=%v manual=%v blocked=%v", st.Name, st.State, st.Farming, st.ManualMode, st.PlayingBlocked)
}

func (b *Instance) statusAllLines() string {
	all := []*Instance{b}
	if b.deps.Fleet != nil {
		all = b.deps.Fleet.All()
	}
	lines := make([]string, 0, len(all))
	for _, inst := range all {
		lines = append(lines, inst.statusLine())
	}
	return strings.Join(lines, "\n")
}

func (b *Instance) lootAll(ctx context.Context) string {
	all := []*Instance{b}
	if b.deps.Fleet != nil {
		all = b.deps.Fleet.All()
	}
	var lines []string
	for _, inst := range all {
		inst.mu.Lock()
		trader := inst.trader
		inst.mu.Unlock()
		if trader == nil {
			lines = append(lines, inst.name+" is not ready")
			continue
		}
		if err := trader.SendLoot(ctx); err != nil {
			lines = append(lines, fmt.Sprintf("%s loot failed: %v", inst.name, err))
			continue
		}
		lines = append(lines, inst.name+" sent loot")
	}
	return strings.Join(lines, "\n")
}

func (b *Instance) playGames(ctx context.Context, args []string) string {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()
	if client == nil {
		return b.name + " is not connected"
	}
	appIDs := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return fmt.Sprintf("invalid app id %q", a)
		}
		appIDs = append(appIDs, id)
	}
	if err := client.PlayGames(ctx, appIDs, b.cfg.IdleCustomName, b.cfg.FarmOffline); err != nil {
		return fmt.Sprintf("%s play failed: %v", b.name, err)
	}
	return b.name + " now playing"
}

func (b *Instance) addLicense(ctx context.Context, args []string) string {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()
	if client == nil || len(args) == 0 {
		return b.name + " is not connected or no app id given"
	}
	appID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Sprintf("invalid app id %q", args[0])
	}
	result, err := client.RequestFreeLicense(ctx, appID)
	if err != nil {
		return fmt.Sprintf("%s addlicense failed: %v", b.name, err)
	}
	return fmt.Sprintf("%s: granted %d package(s), %d app(s)", b.name, len(result.GrantedPackages), len(result.GrantedApps))
}

func (b *Instance) owns(ctx context.Context, args []string) string {
	if b.web == nil {
		return b.name + " is not ready"
	}
	games, err := b.web.GetOwnedGames(ctx)
	if err != nil {
		return fmt.Sprintf("%s owns lookup failed: %v", b.name, err)
	}
	if len(args) == 0 {
		return fmt.Sprintf("%s owns %d game(s)", b.name, len(games))
	}
	appID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Sprintf("invalid app id %q", args[0])
	}
	if title, ok := games[appID]; ok {
		return fmt.Sprintf("%s owns %d: %s", b.name, appID, title)
	}
	return fmt.Sprintf("%s does not own %d", b.name, appID)
}

func (b *Instance) twoFactorToken() string {
	b.mu.Lock()
	mc := b.mobileClient
	b.mu.Unlock()
	if mc == nil {
		return b.name + " has no mobile authenticator enrolled"
	}
	code, secondsRemaining := mc.Auth().GenerateToken()
	return fmt.Sprintf("%s: %s (%ds remaining)", b.name, code, secondsRemaining)
}

// RespondChunked runs Respond and, if the sender is being messaged
// directly rather than through a chat room, splits the reply into
// transport-sized pieces (spec §4.5). A nil result still means "send
// nothing".
func (b *Instance) RespondChunked(ctx context.Context, senderID uint64, message string, direct bool) []string {
	reply := b.Respond(ctx, senderID, message)
	if reply == nil {
		return nil
	}
	if !direct {
		return []string{*reply}
	}
	return chunkReply(*reply, maxReplyChunk)
}

// chunkReply splits a reply for a direct-message transport with a
// small max length, prefixing/suffixing continuation chunks with an
// ellipsis (spec §4.5).
func chunkReply(reply string, max int) []string {
	if max <= 0 || len(reply) <= max {
		return []string{reply}
	}
	var chunks []string
	for len(reply) > 0 {
		n := max
		if n > len(reply) {
			n = len(reply)
		}
		chunks = append(chunks, reply[:n])
		reply = reply[n:]
	}
	for i := range chunks {
		if i > 0 {
			chunks[i] = "..." + chunks[i]
		}
		if i < len(chunks)-1 {
			chunks[i] = chunks[i] + "..."
		}
	}
	return chunks
}
