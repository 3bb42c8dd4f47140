package store

// SQL query constants organized by operation. All SQL lives here —
// PostgresStore methods reference these constants.

const alertColumns = `id, rule_id, fingerprint, severity, status, message,
	metadata, labels,
	triggered_at, last_seen_at, acknowledged_at, acknowledged_by,
	snoozed_until, resolved_at`

const (
	// The partial unique index on active fingerprints makes the insert a
	// no-op when an active alert already holds the slot.
	queryInsertActiveAlert = `
		INSERT INTO alerts (
			id, rule_id, fingerprint, severity, status, message,
			metadata, labels, triggered_at, last_seen_at
		) VALUES (
			@id, @rule_id, @fingerprint, @severity, @status, @message,
			@metadata, @labels, @triggered_at, @last_seen_at
		)
		ON CONFLICT (fingerprint)
			WHERE status IN ('pending', 'firing', 'acknowledged', 'snoozed')
			DO NOTHING
		RETURNING id`

	queryGetActiveByFingerprint = `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE fingerprint = $1
		  AND status IN ('pending', 'firing', 'acknowledged', 'snoozed')`

	queryGetAlert = `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE id = $1`

	queryListActive = `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE status IN ('pending', 'firing', 'acknowledged', 'snoozed')`

	queryTouchLastSeen = `
		UPDATE alerts
		SET last_seen_at = $2,
		    metadata = COALESCE($3, metadata)
		WHERE id = $1
		  AND status IN ('pending', 'firing', 'acknowledged', 'snoozed')`

	queryRecentlyResolved = `
		SELECT EXISTS(
			SELECT 1 FROM alerts
			WHERE fingerprint = $1
			  AND resolved_at IS NOT NULL
			  AND resolved_at >= $2
		)`

	queryAcknowledge = `
		UPDATE alerts
		SET status = 'acknowledged', acknowledged_at = $2, acknowledged_by = $3
		WHERE id = $1 AND status = 'firing'
		RETURNING ` + alertColumns

	querySnooze = `
		UPDATE alerts
		SET status = 'snoozed', snoozed_until = $2
		WHERE id = $1 AND status IN ('firing', 'acknowledged')
		RETURNING ` + alertColumns

	queryResolve = `
		UPDATE alerts
		SET status = 'resolved', resolved_at = $2
		WHERE id = $1 AND status IN ('pending', 'firing', 'acknowledged', 'snoozed')
		RETURNING ` + alertColumns

	queryWakeSnoozed = `
		UPDATE alerts
		SET status = 'firing', snoozed_until = NULL, last_seen_at = $2
		WHERE id = $1 AND status = 'snoozed'
		RETURNING ` + alertColumns

	querySetLabels = `
		UPDATE alerts
		SET labels = $2
		WHERE id = $1
		RETURNING ` + alertColumns

	queryGetStatus = `
		SELECT status FROM alerts WHERE id = $1`

	queryStats = `
		SELECT status, COUNT(*) FROM alerts GROUP BY status`

	queryAckLatency = `
		SELECT COUNT(*),
		       COALESCE(EXTRACT(EPOCH FROM AVG(acknowledged_at - triggered_at)), 0)
		FROM alerts
		WHERE acknowledged_at IS NOT NULL`
)
