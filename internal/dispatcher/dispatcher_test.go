package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-chat/internal/audit"
	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

type recorder struct {
	mu     sync.Mutex
	frames map[string][]map[string]interface{}
}

func newRecorder() *recorder {
	return &recorder{frames: map[string][]map[string]interface{}{}}
}

func (r *recorder) Send(connectionID string, payload []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[connectionID] = append(r.frames[connectionID], m)
	return nil
}

func (r *recorder) last(t *testing.T, connectionID string) (string, map[string]interface{}) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	frames := r.frames[connectionID]
	require.NotEmpty(t, frames, "no frame sent to %s", connectionID)
	f := frames[len(frames)-1]
	data, _ := f["data"].(map[string]interface{})
	return f["action"].(string), data
}

func (r *recorder) count(connectionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames[connectionID])
}

var conn = ConnContext{ConnectionID: "c1", UserID: "alice"}

func echo(ctx context.Context, req *Request) (*domain.OutboundFrame, error) {
	return domain.NewFrame("echo", map[string]string{"user": req.UserID, "uuid": req.UUID}), nil
}

func TestHandleFrameRoutesToHandler(t *testing.T) {
	rec := newRecorder()
	d := New(rec, Routes{SendMessage: echo})

	d.HandleFrame(context.Background(), conn, []byte(`{"action":"sendMessage","data":{"uuid":"u-1"}}`))
	d.Wait()

	action, data := rec.last(t, "c1")
	assert.Equal(t, "echo", action)
	assert.Equal(t, "u-1", data["uuid"])
}

func TestHandlerSeesConnectionIdentityNotClientClaim(t *testing.T) {
	rec := newRecorder()
	d := New(rec, Routes{SendMessage: echo})

	d.HandleFrame(context.Background(), conn, []byte(`{"action":"sendMessage","data":{"userId":"mallory","uuid":"u-2"}}`))
	d.Wait()

	_, data := rec.last(t, "c1")
	assert.Equal(t, "alice", data["user"])
}

func TestHandleFrameRejections(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		code   domain.ErrorCode
		action string
		uuid   string
	}{
		{"not json", `not json`, domain.CodeMalformedPayload, "", ""},
		{"array", `[1,2]`, domain.CodeMalformedPayload, "", ""},
		{"missing data", `{"action":"sendMessage"}`, domain.CodeMissingFields, "sendMessage", ""},
		{"unknown action", `{"action":"deleteEverything","data":{"uuid":"u-9"}}`, domain.CodeUnknownAction, "deleteEverything", "u-9"},
		{"client connect", `{"action":"$connect","data":{}}`, domain.CodeUnknownAction, "$connect", ""},
		{"client disconnect", `{"action":"$disconnect","data":{}}`, domain.CodeUnknownAction, "$disconnect", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecorder()
			var called atomic.Bool
			h := func(ctx context.Context, req *Request) (*domain.OutboundFrame, error) {
				called.Store(true)
				return nil, nil
			}
			d := New(rec, Routes{Connect: h, Disconnect: h, SendMessage: h})

			d.HandleFrame(context.Background(), conn, []byte(tt.raw))
			d.Wait()

			action, data := rec.last(t, "c1")
			assert.Equal(t, domain.ActionError, action)
			assert.Equal(t, string(tt.code), data["code"])
			if tt.action != "" {
				assert.Equal(t, tt.action, data["action"])
			}
			if tt.uuid != "" {
				assert.Equal(t, tt.uuid, data["uuid"])
			}
			assert.False(t, called.Load())
		})
	}
}

func TestHandlerErrorsBecomeErrorFrames(t *testing.T) {
	rec := newRecorder()
	d := New(rec, Routes{
		SendMessage: func(ctx context.Context, req *Request) (*domain.OutboundFrame, error) {
			return nil, domain.ErrNotAParticipant
		},
		GetMessages: func(ctx context.Context, req *Request) (*domain.OutboundFrame, error) {
			return nil, errors.New("connection refused")
		},
	})

	d.HandleFrame(context.Background(), conn, []byte(`{"action":"sendMessage","data":{"uuid":"u-3"}}`))
	d.Wait()
	_, data := rec.last(t, "c1")
	assert.Equal(t, string(domain.CodeNotAParticipant), data["code"])
	assert.Equal(t, "u-3", data["uuid"])
	assert.Nil(t, data["retryable"])

	d.HandleFrame(context.Background(), conn, []byte(`{"action":"getMessages","data":{}}`))
	d.Wait()
	_, data = rec.last(t, "c1")
	assert.Equal(t, string(domain.CodePersistenceFailure), data["code"])
	assert.NotContains(t, data["message"], "connection refused")
	assert.Equal(t, true, data["retryable"])
}

func TestHandlerPanicIsContained(t *testing.T) {
	rec := newRecorder()
	d := New(rec, Routes{
		Ping: func(ctx context.Context, req *Request) (*domain.OutboundFrame, error) {
			panic("boom")
		},
	})

	d.HandleFrame(context.Background(), conn, []byte(`{"action":"ping","data":{}}`))
	d.Wait()

	_, data := rec.last(t, "c1")
	assert.Equal(t, string(domain.CodePersistenceFailure), data["code"])
}

func TestInvokeLifecycle(t *testing.T) {
	rec := newRecorder()
	d := New(rec, Routes{
		Connect: func(ctx context.Context, req *Request) (*domain.OutboundFrame, error) {
			return domain.NewFrame(domain.ActionConnected, nil), nil
		},
		Disconnect: func(ctx context.Context, req *Request) (*domain.OutboundFrame, error) {
			return nil, errors.New("store down")
		},
	})

	assert.True(t, d.Invoke(context.Background(), conn, domain.ActionConnect, nil))
	action, _ := rec.last(t, "c1")
	assert.Equal(t, domain.ActionConnected, action)

	assert.False(t, d.Invoke(context.Background(), conn, domain.ActionDisconnect, nil))
	assert.Equal(t, 1, rec.count("c1"), "failed disconnect must not reply")
}

func TestUnroutedActionIsUnknown(t *testing.T) {
	rec := newRecorder()
	d := New(rec, Routes{})

	d.HandleFrame(context.Background(), conn, []byte(`{"action":"getConversations","data":{}}`))
	d.Wait()

	_, data := rec.last(t, "c1")
	assert.Equal(t, string(domain.CodeUnknownAction), data["code"])
}

func TestLogLinesNameEachFieldOnce(t *testing.T) {
	var buf bytes.Buffer
	connLogger := zerolog.New(&buf).With().
		Str(log.FieldConnectionID, conn.ConnectionID).
		Str(log.FieldUserID, conn.UserID).
		Logger()
	ctx := log.WithLogger(context.Background(), connLogger)

	audited := func(ctx context.Context, req *Request) (*domain.OutboundFrame, error) {
		audit.Log(ctx, audit.ActionSendMessage, req.UserID, "conv-1", "message sent")
		return nil, domain.ErrNotAParticipant
	}
	d := New(newRecorder(), Routes{SendMessage: audited})
	d.HandleFrame(ctx, conn, []byte(`{"action":"sendMessage","data":{"uuid":"u-9"}}`))
	d.Wait()
	d.HandleFrame(ctx, conn, []byte(`{"action":"dropTables","data":{}}`))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		for _, key := range []string{log.FieldUserID, log.FieldConnectionID, log.FieldAction} {
			assert.Equal(t, 1, strings.Count(line, `"`+key+`"`), "%s in %s", key, line)
		}
	}
	assert.Contains(t, lines[0], `"`+audit.FieldActorID+`":"alice"`)
}
