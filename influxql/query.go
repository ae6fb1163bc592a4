package influxql

import (
	"net/url"
	"strings"

	"github.com/arloliu/influxwire/format"
)

// Query endpoint constants used by transports dispatching a Query.
const (
	Path   = "/query"
	Accept = "application/json"
)

// Query is a rendered InfluxQL query with the metadata needed to dispatch it.
// Queries are immutable.
type Query struct {
	text            string
	database        string
	retentionPolicy string
	epoch           format.Precision
}

// String returns the query text.
func (q *Query) String() string { return q.text }

// Database returns the target database, or an empty string when the query names
// none.
func (q *Query) Database() string { return q.database }

// RetentionPolicy returns the target retention policy, or an empty string.
func (q *Query) RetentionPolicy() string { return q.retentionPolicy }

// Epoch returns the requested timestamp precision of the response, or zero when
// the server should render RFC3339 timestamps.
func (q *Query) Epoch() format.Precision { return q.epoch }

// Values returns the form parameters of the query endpoint: q, and db, rp and
// epoch when set.
func (q *Query) Values() url.Values {
	v := url.Values{}
	v.Set("q", q.text)
	if q.database != "" {
		v.Set("db", q.database)
	}
	if q.retentionPolicy != "" {
		v.Set("rp", q.retentionPolicy)
	}
	if q.epoch.Valid() {
		v.Set("epoch", q.epoch.String())
	}

	return v
}

// Join combines queries into one multi-statement query. The statements are
// separated by ';' and the result keeps the dispatch metadata of first. The
// statements of the response appear in the same order.
func Join(first *Query, rest ...*Query) *Query {
	var sb strings.Builder
	sb.WriteString(first.text)
	for _, q := range rest {
		sb.WriteString("; ")
		sb.WriteString(q.text)
	}

	joined := *first
	joined.text = sb.String()

	return &joined
}

// keywords are the reserved InfluxQL words that must be quoted as identifiers.
var keywords = map[string]struct{}{}

func init() {
	for _, k := range strings.Fields(`
		ALL ALTER AND ANALYZE ANY AS ASC BEGIN BY CARDINALITY CREATE CONTINUOUS
		DATABASE DATABASES DEFAULT DELETE DESC DESTINATIONS DIAGNOSTICS DISTINCT
		DROP DURATION END EVERY EXACT EXPLAIN FALSE FIELD FOR FROM GRANT GRANTS
		GROUP GROUPS IN INF INSERT INTO KEY KEYS KILL LIMIT MEASUREMENT
		MEASUREMENTS NAME OFFSET ON OR ORDER PASSWORD POLICIES POLICY PRIVILEGES
		QUERIES QUERY READ REPLICATION RESAMPLE RETENTION REVOKE SELECT SERIES SET
		SHARD SHARDS SLIMIT SOFFSET STATS SUBSCRIPTION SUBSCRIPTIONS TAG TO TRUE
		USER USERS VALUES WHERE WITH WRITE`) {
		keywords[k] = struct{}{}
	}
}

// QuoteIdent renders an identifier. Names made of letters, digits and
// underscores that do not start with a digit and are not keywords render bare;
// others are double-quoted with '\' and '"' escaped.
func QuoteIdent(name string) string {
	if isBareIdent(name) {
		return name
	}

	var sb strings.Builder
	sb.Grow(len(name) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch c {
		case '\\', '"':
			sb.WriteByte('\\')
		case '\n':
			sb.WriteString(`\n`)
			continue
		}
		sb.WriteByte(c)
	}
	sb.WriteByte('"')

	return sb.String()
}

func isBareIdent(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	_, reserved := keywords[strings.ToUpper(name)]

	return !reserved
}

// QuoteString renders a single-quoted string literal with backslashes and single
// quotes escaped.
func QuoteString(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\', '\'':
			sb.WriteByte('\\')
		case '\n':
			sb.WriteString(`\n`)
			continue
		}
		sb.WriteByte(c)
	}
	sb.WriteByte('\'')

	return sb.String()
}
