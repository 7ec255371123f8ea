package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitKeys_NormalizesCommasAndNewlinesAndCase(t *testing.T) {
	keys := splitKeys("abcd-efgh-ijkl, MNOP-QRST-UVWX\n\nyz23-4567-89bc")
	assert.Equal(t, []string{"ABCD-EFGH-IJKL", "MNOP-QRST-UVWX", "YZ23-4567-89BC"}, keys)
}

func TestSplitKeys_SkipsBlankLines(t *testing.T) {
	keys := splitKeys("ABCD-EFGH-IJKL\n\n\nMNOP-QRST-UVWX")
	assert.Len(t, keys, 2)
}

func TestKeyPattern_AcceptsThreeToFiveGroups(t *testing.T) {
	assert.True(t, keyPattern.MatchString("ABCD-EFGH-IJKL"))
	assert.True(t, keyPattern.MatchString("ABCD-EFGH-IJKL-MNOP"))
	assert.True(t, keyPattern.MatchString("ABCDE-EFGHI-IJKLM-MNOPQ-RSTUV"))
	assert.False(t, keyPattern.MatchString("ABC-DEFG-HIJK"))
	assert.False(t, keyPattern.MatchString("not even close"))
}

func TestClassifyResultCode_MapsKnownCodes(t *testing.T) {
	cases := map[string]keyOutcome{
		"OK":                      outcomeOK,
		"DuplicateActivationCode": outcomeDuplicatedKey,
		"InvalidKey":              outcomeInvalidKey,
		"AlreadyOwned":            outcomeAlreadyOwned,
		"BaseGameRequired":        outcomeBaseGameRequired,
		"RateLimited":             outcomeOnCooldown,
		"RegionLocked":            outcomeRegionLocked,
		"SomethingElse":           outcomeUnknown,
	}
	for code, want := range cases {
		assert.Equal(t, want, classifyResultCode(code), code)
	}
}

func TestKeyOutcome_Terminal(t *testing.T) {
	assert.True(t, outcomeOK.terminal())
	assert.True(t, outcomeDuplicatedKey.terminal())
	assert.True(t, outcomeInvalidKey.terminal())
	assert.False(t, outcomeAlreadyOwned.terminal())
	assert.False(t, outcomeOnCooldown.terminal())
	assert.False(t, outcomeTimeout.terminal())
}

func TestRedeemLogEntry_FormatsWithDashWhenNoItems(t *testing.T) {
	e := redeemLogEntry{botName: "bot1", key: "ABCD-EFGH-IJKL", status: outcomeOK}
	assert.Equal(t, "bot1 Key: ABCD-EFGH-IJKL | Status: OK | Items: -", e.String())
}
