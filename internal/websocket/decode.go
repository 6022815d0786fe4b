package websocket

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/stemsi/exstem-proctor/internal/validator"
)

// DecodeError is returned for frames that are malformed or fail validation.
type DecodeError struct {
	Action Action
	Fields map[string]string
}

func (e *DecodeError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("invalid %s request", e.Action)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

// Decode parses one client frame into its typed request.
// Actions without a body decode to a *RequestEnvelope.
func Decode(data []byte) (Action, any, error) {
	var env RequestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, &DecodeError{Fields: map[string]string{"detail": "malformed JSON"}}
	}

	var req any
	switch env.Action {
	case ActionSelect:
		req = &SelectRequest{}
	case ActionNavigate:
		req = &NavigateRequest{}
	case ActionSignal:
		req = &SignalRequest{}
	case ActionFullscreenResult:
		req = &FullscreenResultRequest{}
	case ActionStart, ActionSubmit, ActionRetry, ActionState, ActionPing:
		return env.Action, &env, nil
	case "":
		return "", nil, &DecodeError{Fields: map[string]string{"action": "action is a required field"}}
	default:
		return env.Action, nil, &DecodeError{Action: env.Action, Fields: map[string]string{"action": "unknown action: " + string(env.Action)}}
	}

	if err := json.Unmarshal(data, req); err != nil {
		return env.Action, nil, &DecodeError{Action: env.Action, Fields: map[string]string{"detail": err.Error()}}
	}
	if fields := validator.Struct(req); fields != nil {
		return env.Action, nil, &DecodeError{Action: env.Action, Fields: fields}
	}
	return env.Action, req, nil
}
