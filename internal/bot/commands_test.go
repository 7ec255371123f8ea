package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardfarmd/internal/botdb"
)

func newTestInstance(t *testing.T, cfg Config) *Instance {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "testbot"
	}
	return New(cfg.Name, cfg, Deps{}, nil, &botdb.Record{})
}

func TestParseVerb_LowercasesAndSplitsArgs(t *testing.T) {
	verb, args := parseVerb("!Play 730 440")
	assert.Equal(t, "play", verb)
	assert.Equal(t, []string{"730", "440"}, args)
}

func TestParseVerb_NoArgs(t *testing.T) {
	verb, args := parseVerb("!status")
	assert.Equal(t, "status", verb)
	assert.Empty(t, args)
}

func TestRespond_UnknownVerbReturnsError(t *testing.T) {
	b := newTestInstance(t, Config{MasterID: 1, OwnerID: 1})
	reply := b.Respond(context.Background(), 1, "!bogus")
	require.NotNil(t, reply)
	assert.Equal(t, "ERROR: Unknown command!", *reply)
}

func TestRespond_UnauthorizedSenderGetsNilReply(t *testing.T) {
	b := newTestInstance(t, Config{MasterID: 1, OwnerID: 1})
	reply := b.Respond(context.Background(), 999, "!status")
	assert.Nil(t, reply)
}

func TestRespond_OwnerOnlyVerbRejectsMaster(t *testing.T) {
	b := newTestInstance(t, Config{MasterID: 2, OwnerID: 1})
	reply := b.Respond(context.Background(), 2, "!exit")
	assert.Nil(t, reply)
}

func TestRespond_OwnerOnlyVerbAcceptsOwner(t *testing.T) {
	b := newTestInstance(t, Config{MasterID: 2, OwnerID: 1})
	reply := b.Respond(context.Background(), 1, "!statusall")
	require.NotNil(t, reply)
}

func TestRespond_BlankMessageFromMasterIsNil(t *testing.T) {
	b := newTestInstance(t, Config{MasterID: 1, OwnerID: 1})
	reply := b.Respond(context.Background(), 1, "   ")
	assert.Nil(t, reply)
}

func TestRespond_PlainTextFromNonMasterIsIgnored(t *testing.T) {
	b := newTestInstance(t, Config{MasterID: 1, OwnerID: 1})
	reply := b.Respond(context.Background(), 999, "ABCDE-FGHIJ-KLMNO")
	assert.Nil(t, reply)
}

func TestRespond_PlainTextFromMasterIsTreatedAsRedeem(t *testing.T) {
	b := newTestInstance(t, Config{MasterID: 1, OwnerID: 1})
	reply := b.Respond(context.Background(), 1, "not-a-valid-key")
	require.NotNil(t, reply)
	assert.Contains(t, *reply, "InvalidKey")
}

func TestChunkReply_ShortMessagePassesThrough(t *testing.T) {
	chunks := chunkReply("short", 100)
	assert.Equal(t, []string{"short"}, chunks)
}

func TestChunkReply_SplitsLongMessageWithEllipses(t *testing.T) {
	msg := "0123456789"
	chunks := chunkReply(msg, 4)
	require.Len(t, chunks, 3)
	assert.Equal(t, "0123...", chunks[0])
	assert.Equal(t, "...4567...", chunks[1])
	assert.Equal(t, "...89", chunks[2])
}
