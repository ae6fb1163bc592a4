package flux

import (
	"strings"

	"github.com/arloliu/influxwire/errs"
)

// ParseQueryError classifies a non-2xx response of the query endpoint.
//
// The message is taken from the "message" member of the JSON error body, or from
// the raw body when it is not JSON. A "not found" code yields
// ServerDatabaseNotFound, since the bucket or organization is missing; any other
// code yields ServerUnknown. A 2xx status yields nil.
func ParseQueryError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	msg := strings.TrimSpace(string(body))
	if member := jsonAPI.Get(body, "message"); member.LastError() == nil && member.ToString() != "" {
		msg = member.ToString()
	}

	kind := errs.ServerUnknown
	if code := jsonAPI.Get(body, "code"); code.LastError() == nil && code.ToString() == "not found" {
		kind = errs.ServerDatabaseNotFound
	}

	return &errs.ServerError{Kind: kind, StatusCode: status, Message: msg}
}
