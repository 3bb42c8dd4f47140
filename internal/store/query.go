package store

import (
	"fmt"
	"strings"
)

const baseAlertsSelect = `SELECT ` + alertColumns + ` FROM alerts`

const countAlertsSelect = "SELECT COUNT(*) FROM alerts"

// ToSQL builds the WHERE clause, ORDER BY, LIMIT, and OFFSET for an alert
// query. It returns two SQL strings (one for the data query, one for the
// count query) and the positional parameters.
func (q *AlertQuery) ToSQL() (dataSQL, countSQL string, args []any) {
	var conditions []string
	paramIdx := 1

	if q.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", paramIdx))
		args = append(args, string(*q.Status))
		paramIdx++
	}

	if q.MinSeverity != nil {
		// Severity is an ordered enum; rank it inline so the index on
		// triggered_at stays usable.
		conditions = append(conditions, fmt.Sprintf(
			"CASE severity WHEN 'info' THEN 0 WHEN 'warning' THEN 1 WHEN 'high' THEN 2 WHEN 'critical' THEN 3 ELSE -1 END >= $%d",
			paramIdx,
		))
		args = append(args, q.MinSeverity.Rank())
		paramIdx++
	}

	if q.RuleID != nil {
		conditions = append(conditions, fmt.Sprintf("rule_id = $%d", paramIdx))
		args = append(args, *q.RuleID)
		paramIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	countSQL = countAlertsSelect + where

	dataSQL = fmt.Sprintf(
		"%s%s ORDER BY triggered_at DESC LIMIT $%d OFFSET $%d",
		baseAlertsSelect, where, paramIdx, paramIdx+1,
	)
	args = append(args, ClampLimit(q.Limit), q.Offset)

	return dataSQL, countSQL, args
}
