package errors

import (
	"encoding/json"
	"errors"
)

// Representation of errors the daemon API serves. Each carries one
// of a small number of categories, distinguished by what the caller
// can do about it: retry (the daemon had a problem), fix the request
// (a rejected publish, a malformed image reference), or give up (the
// endpoint does not exist).
type Error struct {
	Type Type
	// a message that can be printed out for the caller
	Help string `json:"help"`
	// the underlying error, for the daemon's own logs
	Err error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

type Type string

const (
	// The request was fine; the daemon failed to serve it
	Server Type = "server"
	// The route requested does not exist on this daemon
	Missing Type = "missing"
	// The request itself was rejected, e.g. a tag the admission
	// pattern refuses, or a spec that fails validation
	User Type = "user"
)

func IsMissing(err error) bool {
	if err, ok := err.(*Error); ok && err.Type == Missing {
		return true
	}
	return false
}

func (e *Error) MarshalJSON() ([]byte, error) {
	var errMsg string
	if e.Err != nil {
		errMsg = e.Err.Error()
	}
	jsonable := &struct {
		Type string `json:"type"`
		Help string `json:"help"`
		Err  string `json:"error,omitempty"`
	}{
		Type: string(e.Type),
		Help: e.Help,
		Err:  errMsg,
	}
	return json.Marshal(jsonable)
}

func (e *Error) UnmarshalJSON(data []byte) error {
	jsonable := &struct {
		Type string `json:"type"`
		Help string `json:"help"`
		Err  string `json:"error,omitempty"`
	}{}
	if err := json.Unmarshal(data, &jsonable); err != nil {
		return err
	}
	e.Type = Type(jsonable.Type)
	e.Help = jsonable.Help
	if jsonable.Err != "" {
		e.Err = errors.New(jsonable.Err)
	}
	return nil
}
