// Package relay turns Webex message webhooks into chat completion replies.
//
// # Flow
//
// The Dispatcher is mounted behind the shared-secret middleware from the auth
// package. For each notification it:
//
//  1. Validates the body (form fields or the Webex JSON envelope); 400 on failure
//  2. Drops messages written by the bot itself
//  3. Drops redeliveries of a message id it already claimed
//  4. Fetches the message text from Webex
//  5. In group spaces, drops messages that do not mention the bot and strips
//     the first mention from those that do
//  6. Resets the conversation on "reset" or "refresh", or submits the text to
//     the conversation's session
//  7. Posts the reply, or a fixed fallback when the completion failed, back to
//     the room (group) or the sender (direct)
//
// Anything else that fails, panics included, is answered with 500 and
// {"status": "error", "message": ...}. Every event is written to the ledger
// when one is configured.
package relay
