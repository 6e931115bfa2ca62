package protocol

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	m, err := Parse([]byte(`{"type":"utterance","data":{"text":"추천해줘"}}`))
	require.NoError(t, err)
	assert.Equal(t, "utterance", m.Type)

	var body struct{ Text string }
	require.NoError(t, m.Decode(&body))
	assert.Equal(t, "추천해줘", body.Text)

	m, err = Parse([]byte(`{"type":"close"}`))
	require.NoError(t, err)
	assert.NoError(t, m.Decode(&body), "no payload leaves the target untouched")
	assert.Equal(t, "추천해줘", body.Text)

	bad := map[string]string{
		"empty":        "  ",
		"not json":     "utterance:hello",
		"missing type": `{"data":{}}`,
		"bad token":    `{"type":"Hello World"}`,
	}
	for name, frame := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(frame))
			assert.Error(t, err)
		})
	}
}

func TestNewMessage(t *testing.T) {
	m, err := NewMessage("error", map[string]string{"error": "busy"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","data":{"error":"busy"}}`, m.String())

	m, err = NewMessage("close", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"close"}`, m.String())

	_, err = NewMessage("", nil)
	assert.Error(t, err)
}

func TestWebSocketEcho(t *testing.T) {
	upgrader := ws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		web := Wrap(conn, time.Second)
		defer web.Close()
		for {
			in := web.Read()
			switch in.Kind {
			case READ_TEXT:
				_ = web.Write(in.Msg)
			case READ_BINARY:
				_ = web.WriteBinary(in.Msg)
			default:
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := NewWebSocket(url, 1, time.Second)
	require.NoError(t, err)

	require.NoError(t, client.Send("status", nil))
	in := client.Read()
	require.Equal(t, READ_TEXT, in.Kind)
	m, err := Parse(in.Msg)
	require.NoError(t, err)
	assert.Equal(t, "status", m.Type)

	require.NoError(t, client.WriteBinary([]byte{1, 2, 3}))
	in = client.Read()
	require.Equal(t, READ_BINARY, in.Kind)
	assert.Equal(t, []byte{1, 2, 3}, in.Msg)

	require.NoError(t, client.Close())
}
