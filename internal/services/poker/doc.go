// Package poker implements the real-time estimation surface for planning
// sessions.
//
// It keeps WebSocket lifecycle, frame dispatch, and fan-out isolated from
// domain logic so the session actors remain the source of truth for state
// transitions.
package poker
