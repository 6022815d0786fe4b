package websocket

import (
	"testing"

	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Select(t *testing.T) {
	action, req, err := Decode([]byte(`{"action":"select","q_id":"7b0c3f9e-3a55-4c1e-9f57-0c3f8f1d2a11","ans":"B"}`))
	require.NoError(t, err)
	assert.Equal(t, ActionSelect, action)

	sel, ok := req.(*SelectRequest)
	require.True(t, ok)
	assert.Equal(t, "B", sel.Answer)
}

func TestDecode_SelectRejectsBadFields(t *testing.T) {
	_, _, err := Decode([]byte(`{"action":"select","q_id":"nope","ans":"e"}`))
	require.Error(t, err)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Fields, "q_id")
	assert.Contains(t, de.Fields, "ans")
}

func TestDecode_Navigate(t *testing.T) {
	_, req, err := Decode([]byte(`{"action":"navigate","to":"goto","index":4}`))
	require.NoError(t, err)
	nav := req.(*NavigateRequest)
	assert.Equal(t, NavigateGoTo, nav.To)
	assert.Equal(t, 4, nav.Index)

	_, _, err = Decode([]byte(`{"action":"navigate","to":"sideways"}`))
	assert.Error(t, err)
}

func TestDecode_SignalIsFlat(t *testing.T) {
	_, req, err := Decode([]byte(`{"action":"signal","kind":"key_down","key":"c","ctrl":true}`))
	require.NoError(t, err)

	sig := req.(*SignalRequest)
	assert.Equal(t, proctor.SignalKeyDown, sig.Kind)
	assert.Equal(t, "c", sig.Key)
	assert.True(t, sig.Ctrl)

	_, _, err = Decode([]byte(`{"action":"signal","kind":"mouse_wiggle"}`))
	assert.Error(t, err)
}

func TestDecode_BodylessActions(t *testing.T) {
	for _, raw := range []string{`{"action":"start"}`, `{"action":"submit"}`, `{"action":"retry"}`, `{"action":"state"}`, `{"action":"ping"}`} {
		_, req, err := Decode([]byte(raw))
		require.NoError(t, err, raw)
		assert.IsType(t, &RequestEnvelope{}, req)
	}
}

func TestDecode_Malformed(t *testing.T) {
	_, _, err := Decode([]byte(`{not json`))
	assert.Error(t, err)

	_, _, err = Decode([]byte(`{}`))
	assert.Error(t, err)

	action, _, err := Decode([]byte(`{"action":"autosave"}`))
	assert.Error(t, err)
	assert.Equal(t, Action("autosave"), action)
}
