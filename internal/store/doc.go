// Package store provides the relay's SQLite ledger.
//
// # Data Models
//
//   - RelayEvent: one handled webhook call with its routing metadata
//     (message, room, person, conversation key), outcome and duration
//   - TokenUsage: token counts of one completion call, linked to its RelayEvent
//
// Message text is never written. The ledger answers "what happened to
// message X" and "how many tokens did room Y use", not "what was said".
//
// # Outcomes
//
//	replied        completion reply delivered
//	fallback       completion failed, fallback text delivered
//	reset          conversation reset and acknowledged
//	self_message   event authored by the bot, ignored
//	not_mentioned  group message without the bot name, ignored
//	duplicate      redelivered message id, ignored
//	invalid        rejected at validation
//	error          failed with a server error
//
// # Implementations
//
// SQLiteStore uses modernc.org/sqlite (pure Go, no cgo) in WAL mode and
// creates its schema on open. MockStore is an in-memory Ledger for tests.
package store
