package readstate

import (
	"time"

	"github.com/adamavenir/streamsync/internal/types"
	"github.com/vmihailenco/msgpack/v5"
)

func encodeState(state types.ReadState) ([]byte, error) {
	state.UpdatedAt = time.Now().UnixMilli()
	return msgpack.Marshal(&state)
}

func decodeState(conversationID string, data []byte) (types.ReadState, error) {
	state := types.ReadState{ConversationID: conversationID}
	if len(data) == 0 {
		return state, nil
	}
	if err := msgpack.Unmarshal(data, &state); err != nil {
		return types.ReadState{ConversationID: conversationID}, err
	}
	return state, nil
}

// mutation is applied to a decoded record; it reports whether anything changed.
type mutation func(state *types.ReadState) bool

func advanceLastRead(id int64) mutation {
	return func(state *types.ReadState) bool {
		if state.HasLastRead && id <= state.LastReadID {
			return false
		}
		state.LastReadID = id
		state.HasLastRead = true
		return true
	}
}

func setUnread(count int) mutation {
	if count < 0 {
		count = 0
	}
	return func(state *types.ReadState) bool {
		if state.UnreadCount == count {
			return false
		}
		state.UnreadCount = count
		return true
	}
}

func incrementUnread(state *types.ReadState) bool {
	state.UnreadCount++
	return true
}
