package lineprotocol

import (
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/arloliu/influxwire/errs"
)

// ParseWriteError classifies the response of the write endpoint.
//
// A 2xx status yields nil. Any other status yields an *errs.ServerError whose
// message is taken from the JSON "error" member of body, or from the raw body
// when it is not JSON. The kind is ServerFieldTypeConflict when the message
// reports a field type conflict, ServerDatabaseNotFound when it reports a
// missing database, and ServerUnknown otherwise.
func ParseWriteError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	msg := strings.TrimSpace(string(body))
	if member := jsoniter.Get(body, "error"); member.ValueType() == jsoniter.StringValue {
		msg = member.ToString()
	}

	kind := errs.ServerUnknown
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "field type conflict"):
		kind = errs.ServerFieldTypeConflict
	case strings.Contains(lower, "database not found"):
		kind = errs.ServerDatabaseNotFound
	}

	return &errs.ServerError{Kind: kind, StatusCode: status, Message: msg}
}
