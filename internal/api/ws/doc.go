// Package ws exposes the hub's websocket endpoint. Satellites and
// dashboards send request frames {id, type, data} over a closed command set
// and receive {id, type, result|error} responses plus unsolicited
// {type: "event", data} pushes fanned out from the event broadcaster.
//
// The dispatch table is validated against the full command set when the
// server is constructed; a command without a handler panics immediately
// instead of failing on the first request. Error responses carry a
// taxonomy code, and ambiguous name matches include the full candidate
// list so the caller can disambiguate.
package ws
