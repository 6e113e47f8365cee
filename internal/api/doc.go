// Package api is the HTTP/JSON client for the conversation service.
//
// # Operations
//
//   - GetConversation(ctx, id): authoritative conversation fetch
//   - SendMessage(ctx, id, msg): submit a message
//   - ListConversations(ctx, params): paged listing
//   - GetSignedURL(ctx, agentID): signed voice connection URL
//   - RegisterSession(ctx, id, req): voice session registration
//   - OpenPushChannel(ctx, path): SSE snapshot subscription
//
// # Error taxonomy
//
// Failures split into TransportError (network failure or a response that is
// not the promised JSON, carrying a truncated raw body) and StatusError
// (non-2xx with a readable message, plus a structured code on session
// endpoints). Classify buckets either kind into a user-facing category:
// connectivity, not-found, server, or other.
package api
