package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ruleRequest identifies one rule by its triple.
type ruleRequest struct {
	DeviceMAC  string `json:"device_mac" validate:"required,max=64"`
	EventName  string `json:"event_name" validate:"required,max=64"`
	ActionName string `json:"action_name" validate:"required,max=64"`
}

// details is the audit detail map for the rule.
func (r ruleRequest) details() map[string]any {
	return map[string]any{"event": r.EventName, "action": r.ActionName}
}

// registerRequest is the body of POST /registrations.
type registerRequest struct {
	DeviceMAC    string   `json:"device_mac" validate:"required,max=64"`
	EventName    string   `json:"event_name" validate:"required,max=64"`
	ActionName   string   `json:"action_name" validate:"required,max=64"`
	DelayMinutes *float64 `json:"delay_minutes" validate:"required,gte=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeRequest decodes a JSON body into dst and validates it. The returned
// error message is safe to show to clients.
func decodeRequest(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}
	if err := validate.Struct(dst); err != nil {
		return describeValidation(err)
	}
	return nil
}

// describeValidation renders validator errors as "field: rule" pairs.
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fe.Field()+" failed "+fe.Tag())
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
