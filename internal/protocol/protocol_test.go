package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amanhasank/together-stream/internal/protocol"
)

func TestScopeTable(t *testing.T) {
	cases := map[string]protocol.Scope{
		protocol.EventVideoChange:    protocol.ScopeAll,
		protocol.EventPlay:           protocol.ScopeOthers,
		protocol.EventPause:          protocol.ScopeAll,
		protocol.EventSeek:           protocol.ScopeOthers,
		protocol.EventSkip:           protocol.ScopeAll,
		protocol.EventSyncUpdate:     protocol.ScopeOthers,
		protocol.EventControlChanged: protocol.ScopeAll,
		protocol.EventChatMessage:    protocol.ScopeAll,
		protocol.EventOffer:          protocol.ScopePeer,
		protocol.EventAnswer:         protocol.ScopePeer,
		protocol.EventICECandidate:   protocol.ScopePeer,
		protocol.EventRoomUpdated:    protocol.ScopeAll,
		protocol.EventUserJoined:     protocol.ScopeOthers,
		protocol.EventUserLeft:       protocol.ScopeOthers,
		"something-else":             protocol.ScopeSender,
	}
	for event, want := range cases {
		assert.Equal(t, want, protocol.ScopeOf(event), event)
	}
}

func TestIsSignaling(t *testing.T) {
	for _, event := range []string{protocol.EventOffer, protocol.EventAnswer, protocol.EventICECandidate} {
		assert.True(t, protocol.IsSignaling(event), event)
		assert.Equal(t, protocol.ScopePeer, protocol.ScopeOf(event), event)
	}
	assert.False(t, protocol.IsSignaling(protocol.EventAvatarAction))
	assert.False(t, protocol.IsSignaling(protocol.EventChatMessage))
}

func TestEncodeDecode(t *testing.T) {
	frame, err := protocol.Encode(protocol.EventPause, protocol.PlaybackMessage{Position: 42.5, Timestamp: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pause","data":{"position":42.5,"playing":false,"rate":0,"timestamp":1}}`, string(frame))

	env, err := protocol.Decode([]byte(`{"type":"skip","data":{"roomId":"abc","seconds":-10}}`))
	require.NoError(t, err)
	var req protocol.PlaybackRequest
	require.NoError(t, protocol.DecodeData(env, &req))
	assert.Equal(t, "abc", req.RoomID)
	assert.Equal(t, -10.0, req.Seconds)

	_, err = protocol.Decode([]byte(`not json`))
	assert.Error(t, err)
	_, err = protocol.Decode([]byte(`{"data":{}}`))
	assert.Error(t, err)

	env, err = protocol.Decode([]byte(`{"type":"take-control"}`))
	require.NoError(t, err)
	var ref protocol.RoomRequest
	assert.NoError(t, protocol.DecodeData(env, &ref))
}
