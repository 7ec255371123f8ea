package platform

import "github.com/vmihailenco/msgpack/v5"

// LoginKeyNotify is the decoded payload of a NotifyLoginKey push: the
// platform handing the client a fresh remembered session key to
// persist (spec §4.5's login-key callback).
type LoginKeyNotify struct {
	JobID uint64 `msgpack:"job_id"`
	Key   []byte `msgpack:"key"`
}

// DecodeLoginKeyNotify decodes a NotifyLoginKey notification's payload.
func DecodeLoginKeyNotify(raw []byte) (LoginKeyNotify, error) {
	var v LoginKeyNotify
	err := msgpack.Unmarshal(raw, &v)
	return v, err
}

// DecodeMachineAuthUpdate decodes a NotifyMachineAuth notification's
// payload (spec §4.5's updateMachineAuth callback).
func DecodeMachineAuthUpdate(raw []byte) (MachineAuthUpdate, error) {
	var v MachineAuthUpdate
	err := msgpack.Unmarshal(raw, &v)
	return v, err
}

// PlayingSessionStateNotify carries the "someone else is playing"
// state change (spec §4.5's onPlayingSessionState callback).
type PlayingSessionStateNotify struct {
	Blocked bool `msgpack:"blocked"`
}

func DecodePlayingSessionStateNotify(raw []byte) (PlayingSessionStateNotify, error) {
	var v PlayingSessionStateNotify
	err := msgpack.Unmarshal(raw, &v)
	return v, err
}
