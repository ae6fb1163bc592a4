package flux

import (
	"net/url"

	jsoniter "github.com/json-iterator/go"
)

// Query endpoint constants used by transports dispatching a Query.
const (
	Path        = "/api/v2/query"
	ContentType = "application/vnd.flux"
	Accept      = "application/csv"
)

var jsonAPI = jsoniter.Config{EscapeHTML: false}.Froze()

// Query is a rendered Flux pipeline. Queries are immutable.
type Query struct {
	text   string
	bucket string
}

// String returns the query text.
func (q *Query) String() string { return q.text }

// Bucket returns the bucket read by the pipeline.
func (q *Query) Bucket() string { return q.bucket }

// Values returns the query endpoint parameters for org.
func (q *Query) Values(org string) url.Values {
	v := url.Values{}
	v.Set("org", org)

	return v
}

// Dialect describes the CSV shape requested from the server. DecodeCSV expects
// the header and all three annotations.
type Dialect struct {
	Header         bool     `json:"header"`
	Annotations    []string `json:"annotations"`
	Delimiter      string   `json:"delimiter"`
	DateTimeFormat string   `json:"dateTimeFormat"`
}

// DefaultDialect returns the dialect DecodeCSV is written for.
func DefaultDialect() Dialect {
	return Dialect{
		Header:         true,
		Annotations:    []string{"datatype", "group", "default"},
		Delimiter:      ",",
		DateTimeFormat: "RFC3339",
	}
}

type requestBody struct {
	Query   string  `json:"query"`
	Type    string  `json:"type"`
	Dialect Dialect `json:"dialect"`
}

// RequestBody renders the JSON request body of the query endpoint, sent with
// Content-Type application/json as an alternative to the raw ContentType body.
func (q *Query) RequestBody() ([]byte, error) {
	return jsonAPI.Marshal(requestBody{Query: q.text, Type: "flux", Dialect: DefaultDialect()})
}
