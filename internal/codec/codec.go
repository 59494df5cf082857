// Package codec turns raw WebSocket frames into typed requests and typed
// replies into frames.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/weiawesome/wes-io-chat/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type envelope struct {
	Action *string          `json:"action"`
	Data   *json.RawMessage `json:"data"`
}

// Decode parses raw into a frame. It fails with a malformed-payload error
// when raw is not a JSON object or data is not an object, and with a
// missing-fields error when action or data is absent. On a missing-fields
// failure the partially decoded frame is still returned so the caller can
// echo what it knows.
func Decode(raw []byte) (*domain.Frame, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, domain.ErrMalformedPayload
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, domain.ErrMalformedPayload
	}

	frame := &domain.Frame{}
	if env.Action != nil {
		frame.Action = strings.TrimSpace(*env.Action)
	}
	if env.Data != nil && !isNull(*env.Data) {
		data := bytes.TrimSpace(*env.Data)
		if data[0] != '{' {
			return frame, domain.NewError(domain.CodeMalformedPayload, "data must be a JSON object")
		}
		frame.Data = json.RawMessage(data)
	}

	var missing []string
	if frame.Action == "" {
		missing = append(missing, "action")
	}
	if frame.Data == nil {
		missing = append(missing, "data")
	}
	if len(missing) > 0 {
		return frame, missingFields(missing)
	}
	return frame, nil
}

// DecodeData unmarshals a frame's data into v and enforces v's validate tags.
func DecodeData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return domain.NewError(domain.CodeMalformedPayload,
				fmt.Sprintf("field %q has the wrong type", typeErr.Field))
		}
		return domain.ErrMalformedPayload
	}

	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return domain.ErrMalformedPayload
		}

		var missing []string
		var invalid []string
		for _, fe := range verrs {
			if fe.Tag() == "required" {
				missing = append(missing, fe.Field())
			} else {
				invalid = append(invalid, fe.Field())
			}
		}
		if len(missing) > 0 {
			return missingFields(missing)
		}
		return domain.NewError(domain.CodeMalformedPayload,
			"invalid value for "+strings.Join(invalid, ", "))
	}
	return nil
}

// CorrelationID returns the client's uuid from data, or "" when absent.
func CorrelationID(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var probe struct {
		UUID interface{} `json:"uuid"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	if s, ok := probe.UUID.(string); ok {
		return s
	}
	return ""
}

// Encode marshals an outbound frame.
func Encode(frame *domain.OutboundFrame) ([]byte, error) {
	return json.Marshal(frame)
}

func missingFields(fields []string) *domain.Error {
	sort.Strings(fields)
	return domain.NewError(domain.CodeMissingFields, "missing required fields: "+strings.Join(fields, ", "))
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}
