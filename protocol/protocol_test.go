package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		op    Op
		paths []string
	}{
		{"list", `{"type":"list","requestId":1,"path":"/data"}`, OpList, []string{"/data"}},
		{"read", `{"type":"read","requestId":2,"path":"/data/a","encoding":"base64"}`, OpRead, []string{"/data/a"}},
		{"rename", `{"type":"rename","requestId":3,"oldPath":"/a","newPath":"/b"}`, OpRename, []string{"/a", "/b"}},
		{"copy", `{"type":"copy","requestId":4,"source":"/a","destination":"/b"}`, OpCopy, []string{"/a", "/b"}},
		{"search", `{"type":"search","requestId":5,"path":"/data","pattern":"x"}`, OpSearch, []string{"/data"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeRequest([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.op, req.Op())
			assert.Equal(t, tt.paths, req.Paths())
		})
	}
}

func TestDecodeRequest_Errors(t *testing.T) {
	_, err := DecodeRequest([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrProtocolDecode)

	_, err = DecodeRequest([]byte(`{"type":"list","path":"/x"}`))
	assert.ErrorIs(t, err, ErrProtocolDecode)

	_, err = DecodeRequest([]byte(`{"type":"chmod","requestId":9}`))
	assert.ErrorIs(t, err, ErrUnknownOperation)
	var unknown *UnknownOperationError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, uint64(9), unknown.RequestID)
}

func TestSearchDefaults(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"type":"search","requestId":1,"path":"/","pattern":"a"}`))
	require.NoError(t, err)
	search := req.(*SearchRequest)
	assert.True(t, search.IsRecursive())
	assert.Equal(t, DefaultSearchLimit, search.Limit())

	req, err = DecodeRequest([]byte(`{"type":"search","requestId":1,"path":"/","pattern":"a","recursive":false,"maxResults":3}`))
	require.NoError(t, err)
	search = req.(*SearchRequest)
	assert.False(t, search.IsRecursive())
	assert.Equal(t, 3, search.Limit())
}

func TestEncodeRequest(t *testing.T) {
	data, err := EncodeRequest(7, &WriteRequest{Path: "/data/a.txt", Content: "hi"})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "write", raw["type"])
	assert.Equal(t, float64(7), raw["requestId"])
	assert.Equal(t, "/data/a.txt", raw["path"])

	req, err := DecodeRequest(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), req.ID())
}

func TestServerMessages(t *testing.T) {
	data, err := json.Marshal(Connected(Capabilities{AllowedPaths: []string{"/data"}, MaxFileSize: 10}))
	require.NoError(t, err)
	env, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, TypeConnected, env.Type)
	assert.Equal(t, []string{"/data"}, env.Config.AllowedPaths)
	assert.Zero(t, env.RequestID)

	data, err = json.Marshal(Failure(3, fmt.Errorf("%w: /etc", ErrAccessDenied)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"result","requestId":3,"success":false,"error":"access denied: /etc"}`, string(data))

	_, err = DecodeEnvelope([]byte(`{"type":"bogus"}`))
	assert.ErrorIs(t, err, ErrProtocolDecode)
	_, err = DecodeEnvelope([]byte(`{"type":"connected"}`))
	assert.ErrorIs(t, err, ErrProtocolDecode)
}

func TestFromMessage(t *testing.T) {
	err := FromMessage("access denied: /etc/passwd")
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.Equal(t, "access denied: /etc/passwd", err.Error())

	assert.ErrorIs(t, FromMessage("delete operations are disabled"), ErrDeleteDisabled)

	err = FromMessage("open /data/x: no such file or directory")
	assert.Equal(t, "open /data/x: no such file or directory", err.Error())
	assert.False(t, errors.Is(err, ErrAccessDenied))
}

func TestContentEncoding(t *testing.T) {
	raw := []byte{0x00, 0xff, 'h', 'i'}
	for _, enc := range []string{EncodingBase64, EncodingHex, EncodingLatin1} {
		s, err := EncodeContent(raw, enc)
		require.NoError(t, err)
		back, err := DecodeContent(s, enc)
		require.NoError(t, err)
		assert.Equal(t, raw, back, enc)
	}

	s, err := EncodeContent([]byte("héllo"), "utf-8")
	require.NoError(t, err)
	assert.Equal(t, "héllo", s)

	_, err = DecodeContent("x", "ucs2")
	assert.Error(t, err)
}

func TestDecodeLatin1RejectsWideRunes(t *testing.T) {
	got, err := DecodeContent("café", EncodingLatin1)
	require.NoError(t, err)
	assert.Equal(t, []byte{'c', 'a', 'f', 0xe9}, got)

	for _, content := range []string{"€uro", "ok ☃", "\U0001F600"} {
		_, err := DecodeContent(content, EncodingLatin1)
		assert.Error(t, err, content)
	}
}
