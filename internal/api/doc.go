// Package api exposes the balancer over HTTP.
//
// Routes:
//
//	GET  /assign-condition?prolific_pid=&session_id=  -> {"condition": n}
//	POST /confirm-condition {prolific_pid, session_id} -> {"status": "success", "condition": n}
//	GET  /sessions/{session}/counters                  -> session summary
//	GET  /healthz                                      -> {"status": "ok"}
//
// Failures are JSON {"error", "kind", "participant", "session"} with a status
// derived from the balancer error kind.
package api
