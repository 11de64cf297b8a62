package chat

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat-rooms/internal/store"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Event
		wantErr string
	}{
		{name: "untyped post", raw: `{"message":"hi","username":"alice"}`, want: PostMessage{Content: "hi", Username: "alice"}},
		{name: "typed post", raw: `{"type":"message","message":"hi"}`, want: PostMessage{Content: "hi"}},
		{name: "post keeps inner spaces", raw: `{"message":"  a b  "}`, want: PostMessage{Content: "  a b  "}},
		{name: "load more with number", raw: `{"type":"load_more","oldest_id":16}`, want: LoadMore{OldestID: 16}},
		{name: "load more with string", raw: `{"type":"load_more","oldest_id":"16"}`, want: LoadMore{OldestID: 16}},
		{name: "malformed json", raw: `{"message":`, wantErr: "malformed event"},
		{name: "unknown type", raw: `{"type":"typing"}`, wantErr: `unknown event type "typing"`},
		{name: "blank content", raw: `{"message":"  \n\t"}`, wantErr: "message is required"},
		{name: "missing content", raw: `{"username":"alice"}`, wantErr: "message is required"},
		{name: "username too long", raw: `{"message":"hi","username":"` + strings.Repeat("x", 101) + `"}`, wantErr: "username is too long"},
		{name: "missing cursor", raw: `{"type":"load_more"}`, wantErr: "oldest_id is required"},
		{name: "zero cursor", raw: `{"type":"load_more","oldest_id":0}`, wantErr: "oldest_id is required"},
		{name: "negative cursor", raw: `{"type":"load_more","oldest_id":-3}`, wantErr: "malformed event"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			event, err := DecodeEvent([]byte(tt.raw))
			if tt.wantErr != "" {
				req.ErrorIs(err, ErrValidation)
				req.ErrorContains(err, tt.wantErr)
				req.Nil(event)
				return
			}
			req.NoError(err)
			req.Equal(tt.want, event)
		})
	}
}

func TestEncodeLive_Renders_Display_Time_In_Location(t *testing.T) {
	req := require.New(t)
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skip("tzdata not available")
	}
	msg := store.Message{ID: 3, Author: "alice", Content: "hi", CreatedAt: time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)}

	frame, err := EncodeLive(msg, paris)
	req.NoError(err)

	var payload map[string]any
	req.NoError(json.Unmarshal(frame, &payload))
	req.Equal(float64(3), payload["id"])
	req.Equal("hi", payload["message"])
	req.Equal("alice", payload["username"])
	req.Equal("09:30", payload["timestamp"])
	req.Equal("2024-01-15T08:30:00Z", payload["created_at"])
	req.NotContains(payload, "type")
}

func TestEncodeHistory_Empty_Batch_Is_An_Empty_List(t *testing.T) {
	req := require.New(t)

	frame, err := EncodeHistory(nil, time.UTC)

	req.NoError(err)
	req.JSONEq(`{"type":"history","messages":[]}`, string(frame))
}

func TestEncodeHistory_Keeps_Order(t *testing.T) {
	req := require.New(t)
	messages := []store.Message{
		{ID: 1, Author: "a", Content: "first", CreatedAt: time.Unix(0, 0)},
		{ID: 2, Author: "b", Content: "second", CreatedAt: time.Unix(60, 0)},
	}

	frame, err := EncodeHistory(messages, time.UTC)
	req.NoError(err)

	var payload HistoryPayload
	req.NoError(json.Unmarshal(frame, &payload))
	req.Equal(TypeHistory, payload.Type)
	req.Len(payload.Messages, 2)
	req.Equal("first", payload.Messages[0].Message)
	req.Equal("00:01", payload.Messages[1].Timestamp)
}

func TestEncodeError(t *testing.T) {
	frame, err := EncodeError("message is required")

	require.NoError(t, err)
	require.JSONEq(t, `{"type":"error","error":"message is required"}`, string(frame))
}
