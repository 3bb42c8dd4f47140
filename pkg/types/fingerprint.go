package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"
)

// Fingerprint derives the stable identity of "this rule matched with these
// metric values": the (metric, value) pair of every leaf referenced anywhere
// in the rule's condition tree, sorted by metric name, concatenated with the
// rule id, and hashed. The same rule matching the same metric values always
// yields the same fingerprint, regardless of evaluation order.
func Fingerprint(rule *AlertRule, snap Snapshot) string {
	metrics := rule.Condition.Leaves(nil)
	slices.Sort(metrics)
	metrics = slices.Compact(metrics)

	h := sha256.New()
	h.Write([]byte(rule.ID))
	for _, m := range metrics {
		h.Write([]byte{0})
		h.Write([]byte(m))
		h.Write([]byte{'='})
		h.Write([]byte(FormatValue(snap[m])))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FormatValue renders a snapshot value in a stable textual form, suitable
// for fingerprinting and for where-clause comparison. Metrics absent from
// the snapshot render distinctly from any real value.
func FormatValue(v any) string {
	if v == nil {
		return "<absent>"
	}
	if f, ok := asFloat(v); ok {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	if b, ok := v.(bool); ok {
		return strconv.FormatBool(b)
	}
	if s, ok := asString(v); ok {
		return s
	}
	if set, ok := asStringSet(v); ok {
		sorted := slices.Clone(set)
		slices.Sort(sorted)
		return "{" + strings.Join(sorted, ",") + "}"
	}
	return "<opaque>"
}
