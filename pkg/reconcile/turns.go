package reconcile

// Turn is one user message and everything produced in response to it.
type Turn struct {
	Messages []UiMessage
}

// GroupTurns splits a transcript into turns: each user-kind message starts a
// new turn, and anything before the first user message is returned as
// orphans. It is a pure function of its input; callers recompute it instead
// of caching it across session switches.
func GroupTurns(messages []UiMessage) (orphans []UiMessage, turns []Turn) {
	for _, msg := range messages {
		if msg.Kind == KindUser {
			turns = append(turns, Turn{Messages: []UiMessage{msg}})
			continue
		}
		if len(turns) == 0 {
			orphans = append(orphans, msg)
			continue
		}
		last := &turns[len(turns)-1]
		last.Messages = append(last.Messages, msg)
	}
	return orphans, turns
}
