// Package timespec resolves already-parsed time specifications (a relative
// duration or an absolute time of day with optional meridiem and day
// qualifiers) into absolute expiry instants. Natural-language parsing happens
// upstream in the speech pipeline; this package only does the calendar math.
package timespec
