package codec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-chat/internal/domain"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantCode domain.ErrorCode
		action   string
	}{
		{name: "not json", raw: "not json", wantCode: domain.CodeMalformedPayload},
		{name: "empty", raw: "   ", wantCode: domain.CodeMalformedPayload},
		{name: "array", raw: `[1,2]`, wantCode: domain.CodeMalformedPayload},
		{name: "truncated", raw: `{"action":"sendMessage",`, wantCode: domain.CodeMalformedPayload},
		{name: "action wrong type", raw: `{"action":5,"data":{}}`, wantCode: domain.CodeMalformedPayload},
		{name: "data not object", raw: `{"action":"getMessages","data":"x"}`, wantCode: domain.CodeMalformedPayload, action: "getMessages"},
		{name: "missing action", raw: `{"data":{}}`, wantCode: domain.CodeMissingFields},
		{name: "blank action", raw: `{"action":"  ","data":{}}`, wantCode: domain.CodeMissingFields},
		{name: "missing data", raw: `{"action":"getConversations"}`, wantCode: domain.CodeMissingFields, action: "getConversations"},
		{name: "null data", raw: `{"action":"getConversations","data":null}`, wantCode: domain.CodeMissingFields, action: "getConversations"},
		{name: "valid", raw: `{"action":"getConversations","data":{}}`, action: "getConversations"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Decode([]byte(tt.raw))
			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.action, frame.Action)
				assert.JSONEq(t, `{}`, string(frame.Data))
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, domain.CodeOf(err))
			if tt.action != "" {
				require.NotNil(t, frame)
				assert.Equal(t, tt.action, frame.Action)
			}
		})
	}
}

func TestDecodeReportsEveryMissingEnvelopeField(t *testing.T) {
	_, err := Decode([]byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "action, data")
}

func TestDecodeData(t *testing.T) {
	t.Run("send message requires fields", func(t *testing.T) {
		var req domain.SendMessageRequest
		err := DecodeData(json.RawMessage(`{"uuid":"x"}`), &req)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrMissingFields)
		assert.Contains(t, err.Error(), "conversationId")
		assert.Contains(t, err.Error(), "content")
	})

	t.Run("empty content is present", func(t *testing.T) {
		var req domain.SendMessageRequest
		err := DecodeData(json.RawMessage(`{"uuid":"x","conversationId":"c","content":""}`), &req)
		require.NoError(t, err)
		require.NotNil(t, req.Content)
		assert.Equal(t, "", *req.Content)
	})

	t.Run("wrong type", func(t *testing.T) {
		var req domain.CreateConversationRequest
		err := DecodeData(json.RawMessage(`{"uuid":"x","recipientId":42}`), &req)
		assert.ErrorIs(t, err, domain.ErrMalformedPayload)
	})

	t.Run("limit out of range", func(t *testing.T) {
		var req domain.GetMessagesRequest
		err := DecodeData(json.RawMessage(`{"conversationId":"c","limit":1000}`), &req)
		require.Error(t, err)
		assert.Equal(t, domain.CodeMalformedPayload, domain.CodeOf(err))
		assert.Contains(t, err.Error(), "limit")
	})

	t.Run("client supplied user id is ignored", func(t *testing.T) {
		var req domain.CreateConversationRequest
		err := DecodeData(json.RawMessage(`{"uuid":"x","recipientId":"u2","userId":"spoofed"}`), &req)
		require.NoError(t, err)
		assert.Equal(t, "u2", req.RecipientID)
	})
}

func TestCorrelationID(t *testing.T) {
	assert.Equal(t, "abc", CorrelationID(json.RawMessage(`{"uuid":"abc"}`)))
	assert.Equal(t, "", CorrelationID(json.RawMessage(`{"uuid":7}`)))
	assert.Equal(t, "", CorrelationID(nil))
}

func TestEncode(t *testing.T) {
	data, err := Encode(domain.NewFrame(domain.ActionPong, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"pong","data":{}}`, string(data))
}
