// Package thread holds the conversation and message model plus the two
// pieces of local write machinery: the MessageStore, which owns the
// displayed message sequence for one conversation, and the
// OptimisticWriter, which appends tentative messages ahead of server
// confirmation and reverts them wholesale on failure.
package thread
