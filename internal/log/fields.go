// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldJobID     = "job_id"
	FieldRequestID = "request_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Guide fields
	FieldChannel  = "channel"
	FieldMatchKey = "match_key"
	FieldSource   = "source"
	FieldMode     = "mode"

	// Path / URL fields
	FieldPath = "path"
	FieldURL  = "url"
)
