// ABOUTME: Error taxonomy for conversation sessions
// ABOUTME: Sentinels wrap underlying causes and surface through session state

package conversation

import "errors"

var (
	// ErrHistoryLoad marks a failed history load. Transient: the caller may
	// reopen the conversation.
	ErrHistoryLoad = errors.New("history load failed")

	// ErrSubscription marks a failed or unavailable event bus subscription.
	// The session degrades to history-only and reports Errored.
	ErrSubscription = errors.New("subscription failed")

	// ErrNotLive is returned by Send on a session that is not in the Live
	// state.
	ErrNotLive = errors.New("session not live")

	// ErrSelfConversation is returned when opening a conversation with
	// oneself.
	ErrSelfConversation = errors.New("cannot open a conversation with yourself")
)
