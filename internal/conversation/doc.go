// Package conversation keeps the per-conversation transcripts the relay sends
// to the completion endpoint.
//
// # Session
//
// A Session owns one transcript and one completer. The transcript
// always starts with a single system turn and then alternates user and
// assistant turns:
//
//	s := conversation.NewSession(key, prompt, completer, nil, logger)
//	reply, err := s.Submit(ctx, "what is the on-call rota?")
//
// A successful Submit grows the transcript by exactly two turns. A failed one
// leaves it untouched and returns a *CompletionError. Reset discards every turn
// and reopens the transcript with the (re)loaded system prompt.
//
// # Factory
//
// The Factory builds sessions. It checks that the TokenSource can issue a
// token, then binds a completer that asks the source again on every call, so
// a session outlives the token it started with:
//
//	f := conversation.NewFactory(conversation.FactoryConfig{
//	    Tokens:       tokenProvider,
//	    NewCompleter: client.WithTokens,
//	    SystemPrompt: conversation.FilePrompt("prompts/system.txt"),
//	})
//
// # Store
//
// Store keeps one session per conversation key (room id for group rooms,
// person id for direct rooms). Idle sessions expire after a TTL and the least
// recently used session is evicted at capacity. Ephemeral instead builds a new
// session for every event and keeps nothing.
package conversation
