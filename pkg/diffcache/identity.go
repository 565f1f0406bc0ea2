package diffcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/accessops/idsync/pkg/source"
)

// QueryHash fingerprints a query by its SQL text and bound parameter values.
// Identical SQL with identical parameters always collides; any difference in
// either yields a different hash. It partitions all cached state belonging to
// one logical query.
func QueryHash(query string, params source.Params) string {
	var b strings.Builder
	b.WriteString(query)
	b.WriteByte('\n')

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(canonicalValue(params[k]))
	}

	sum := sha256.Sum256([]byte(b.String()))

	return hex.EncodeToString(sum[:])
}

// RowHash fingerprints a row by its ordered scalar values. Two rows with
// identical values in identical positions collide; this is how "same row" is
// recognized across polling cycles without knowing any primary key.
//
// Distinct rows hashing to the same fingerprint is an accepted risk: the
// 256-bit space is enormous relative to any plausible personnel table.
func RowHash(row source.Row) string {
	var b strings.Builder
	for i, v := range row {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(canonicalValue(v))
	}

	sum := sha256.Sum256([]byte(b.String()))

	return hex.EncodeToString(sum[:])
}

// canonicalValue encodes a scalar deterministically for hashing. The cache is
// schema-oblivious: it never interprets column meaning, only value identity.
func canonicalValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "\x00null"
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.FormatInt(int64(t), 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", t)
	}
}
