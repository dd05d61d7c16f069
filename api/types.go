// types.go - Fehler- und Hilfstypen der HTTP-API
// Enthaelt: StatusError, AuthorizationError, Duration
package api

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		return "something went wrong, please see the edullm server logs for details"
	}
}

// AuthorizationError wird bei 401 zurueckgegeben
type AuthorizationError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e AuthorizationError) Error() string {
	if e.ErrorMessage != "" {
		return e.ErrorMessage
	}
	if e.Status != "" {
		return e.Status
	}
	return "unauthorized"
}

// Duration ist ein JSON-serialisierbarer time.Duration Wrapper.
// Zahlen werden als Sekunden gelesen.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte("\"" + d.Duration.String() + "\""), nil
}

func (d *Duration) UnmarshalJSON(b []byte) (err error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch t := v.(type) {
	case float64:
		d.Duration = time.Duration(t * float64(time.Second))
	case string:
		d.Duration, err = time.ParseDuration(t)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported type: '%s'", reflect.TypeOf(v))
	}

	return nil
}
