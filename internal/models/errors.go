package models

import "fmt"

// TransientFetchError is returned when a telemetry poll fails. The caller keeps
// the last good snapshot and retries on its next tick.
type TransientFetchError struct {
	Source string
	Status int // HTTP status, 0 when the request never completed
	Err    error
}

func (e *TransientFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.Source, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// MalformedRecordError marks a single record that cannot be used. Only that
// record is skipped.
type MalformedRecordError struct {
	VehicleID string
	Reason    string
}

func (e *MalformedRecordError) Error() string {
	if e.VehicleID == "" {
		return "malformed record: " + e.Reason
	}
	return fmt.Sprintf("malformed record %s: %s", e.VehicleID, e.Reason)
}

// QueryServiceError is shown to the user inline and never retried.
type QueryServiceError struct {
	Status int
	Err    error
}

func (e *QueryServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("query service returned status %d", e.Status)
	}
	return fmt.Sprintf("query service unavailable: %v", e.Err)
}

func (e *QueryServiceError) Unwrap() error { return e.Err }

// RenderMountError is fatal to one map layer instance.
type RenderMountError struct {
	Container string
	Err       error
}

func (e *RenderMountError) Error() string {
	return fmt.Sprintf("mount map on %q: %v", e.Container, e.Err)
}

func (e *RenderMountError) Unwrap() error { return e.Err }
