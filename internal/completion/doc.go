// Package completion talks to an Azure-hosted chat completion deployment.
//
// A Client is configured once from the completion section of the config.
// Each conversation session asks it for a completer bound to a token source.
// The source is asked for the api-key on every request, so refreshed tokens
// reach sessions that were built with an older one:
//
//	c := completion.New(completion.Config{Endpoint: url, APIVersion: "2024-06-01", Model: "gpt-4o"}, logger)
//	completer := c.WithTokens(tokenProvider)
//
// Every request sends the whole transcript and carries the identity tag
// {"appkey": "<app key>"} in the user field.
package completion
