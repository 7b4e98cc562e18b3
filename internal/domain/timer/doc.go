// Package timer contains the core domain types for the timer lifecycle:
// the Timer entity, its class and status enumerations with the legal
// transition graph, and the error taxonomy shared by every layer.
package timer
