// Package webex is a small client for the Webex messages API.
//
// Webhook notifications only carry a message id, so the relay fetches the
// text with GetMessage and answers with Send:
//
//	c := webex.NewClient(webex.ClientConfig{BotToken: token}, logger)
//	msg, err := c.GetMessage(ctx, messageID)
//	_, err = c.Send(ctx, reply, webex.Recipient{RoomID: msg.RoomID})
//
// Non-2xx responses come back as *APIError carrying the status, the response
// body and the Webex tracking id. When markdown mode is on, replies are posted
// as markdown with a plain-text fallback produced by PlainText.
package webex
