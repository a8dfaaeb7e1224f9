package internaldefs

import (
	"github.com/pyjobs/jobauth"
)

// BucketCount is the number of latency buckets, the last one unbounded.
const BucketCount = 8

// CounterDef names one engine counter.
type CounterDef struct {
	ID   jobauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   jobauth.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: jobauth.MetricVerifySuccess, Name: "jobauth_verify_success_total", Help: "Tokens accepted."},
	{ID: jobauth.MetricVerifyMalformed, Name: "jobauth_verify_malformed_total", Help: "Tokens rejected as malformed."},
	{ID: jobauth.MetricVerifyUnknownKey, Name: "jobauth_verify_unknown_key_total", Help: "Tokens naming an unknown kid."},
	{ID: jobauth.MetricVerifyAlgorithmMismatch, Name: "jobauth_verify_algorithm_mismatch_total", Help: "Tokens whose alg does not match the key."},
	{ID: jobauth.MetricVerifyInvalidSignature, Name: "jobauth_verify_invalid_signature_total", Help: "Tokens with an invalid signature."},
	{ID: jobauth.MetricVerifyExpired, Name: "jobauth_verify_expired_total", Help: "Expired tokens."},
	{ID: jobauth.MetricVerifyAudienceMismatch, Name: "jobauth_verify_audience_mismatch_total", Help: "Tokens for another audience."},
	{ID: jobauth.MetricVerifyIssuerNotAllowed, Name: "jobauth_verify_issuer_not_allowed_total", Help: "Tokens from an issuer outside the allow-list."},
	{ID: jobauth.MetricIssueSuccess, Name: "jobauth_issue_success_total", Help: "Tokens signed."},
	{ID: jobauth.MetricIssueFailure, Name: "jobauth_issue_failure_total", Help: "Signing failures."},
	{ID: jobauth.MetricKeySetRefreshSuccess, Name: "jobauth_keyset_refresh_success_total", Help: "Successful JWKS fetches."},
	{ID: jobauth.MetricKeySetRefreshFailure, Name: "jobauth_keyset_refresh_failure_total", Help: "Failed JWKS fetches."},
	{ID: jobauth.MetricKeySetEntrySkipped, Name: "jobauth_keyset_entry_skipped_total", Help: "JWKS entries skipped as unusable."},
}

var HistogramDefs = []HistogramDef{
	{ID: jobauth.MetricVerifyLatency, Name: "jobauth_verify_latency_seconds", Help: "Verify latency histogram."},
}

// AuditDroppedName is the counter of audit events dropped on a full buffer.
const AuditDroppedName = "jobauth_audit_dropped_total"

// HistogramBounds are the le labels of jobauth.HistogramBucketBounds, in seconds.
var HistogramBounds = []string{
	"0.00005",
	"0.0001",
	"0.00025",
	"0.0005",
	"0.001",
	"0.005",
	"0.025",
	"+Inf",
}

// HistogramBoundSuffix are instrument-name-safe forms of HistogramBounds.
var HistogramBoundSuffix = []string{
	"0_00005",
	"0_0001",
	"0_00025",
	"0_0005",
	"0_001",
	"0_005",
	"0_025",
	"inf",
}

// UpperBoundsSeconds returns the finite bucket bounds in seconds.
func UpperBoundsSeconds() []float64 {
	out := make([]float64, len(jobauth.HistogramBucketBounds))
	for i, d := range jobauth.HistogramBucketBounds {
		out[i] = d.Seconds()
	}
	return out
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
