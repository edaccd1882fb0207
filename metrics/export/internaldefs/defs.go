package internaldefs

import (
	goCounter "github.com/MrEthical07/goCounter"
)

// CounterDef names one client counter.
type CounterDef struct {
	ID   goCounter.MetricID
	Name string
	Help string
}

// HistogramDef names one client histogram.
type HistogramDef struct {
	ID   goCounter.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: goCounter.MetricLoginSuccess, Name: "gocounter_login_success_total", Help: "Sessions established from a login."},
	{ID: goCounter.MetricLoginFailure, Name: "gocounter_login_failure_total", Help: "Rejected or unanswered login attempts."},
	{ID: goCounter.MetricRegisterSuccess, Name: "gocounter_register_success_total", Help: "Accounts created."},
	{ID: goCounter.MetricRegisterFailure, Name: "gocounter_register_failure_total", Help: "Rejected or unanswered registrations."},
	{ID: goCounter.MetricSessionRestored, Name: "gocounter_session_restored_total", Help: "Sessions picked up from the credential store."},
	{ID: goCounter.MetricLogout, Name: "gocounter_logout_total", Help: "Explicit logouts."},
	{ID: goCounter.MetricSessionExpired, Name: "gocounter_session_expired_total", Help: "Sessions torn down after a 401."},
	{ID: goCounter.MetricFetchSuccess, Name: "gocounter_fetch_success_total", Help: "Successful counter reads."},
	{ID: goCounter.MetricFetchFailure, Name: "gocounter_fetch_failure_total", Help: "Failed counter reads."},
	{ID: goCounter.MetricIncrementSuccess, Name: "gocounter_increment_success_total", Help: "Confirmed increments."},
	{ID: goCounter.MetricIncrementFailure, Name: "gocounter_increment_failure_total", Help: "Failed increments."},
	{ID: goCounter.MetricResetSuccess, Name: "gocounter_reset_success_total", Help: "Confirmed resets."},
	{ID: goCounter.MetricResetFailure, Name: "gocounter_reset_failure_total", Help: "Failed or denied resets."},
	{ID: goCounter.MetricReconcile, Name: "gocounter_reconcile_total", Help: "Re-reads issued after a failed mutation."},
	{ID: goCounter.MetricStaleResponseDropped, Name: "gocounter_stale_response_dropped_total", Help: "Responses discarded because their session had ended."},
	{ID: goCounter.MetricPasswordChangeSuccess, Name: "gocounter_password_change_success_total", Help: "Successful password changes."},
	{ID: goCounter.MetricPasswordChangeFailure, Name: "gocounter_password_change_failure_total", Help: "Failed password changes."},
	{ID: goCounter.MetricCredentialStoreError, Name: "gocounter_credential_store_error_total", Help: "Failed credential store operations."},
	{ID: goCounter.MetricTransportError, Name: "gocounter_transport_error_total", Help: "Requests that received no response."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goCounter.MetricRequestLatency, Name: "gocounter_request_latency_seconds", Help: "API request latency."},
}

// AuditDroppedName is the counter of audit events lost to backpressure.
const AuditDroppedName = "gocounter_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// bucket of a snapshot is +Inf.
var HistogramUpperBounds = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// HistogramBoundSuffix names each bucket for exporters that flatten buckets
// into separate instruments.
var HistogramBoundSuffix = []string{
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
