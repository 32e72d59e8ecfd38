package session

import "sync"

// DrainMode selects how prompts queued during a turn are drained afterwards.
type DrainMode string

const (
	// DrainSteering puts new prompts at the front of the queue so they run
	// as the very next turn, interleaving with whatever was queued before.
	DrainSteering DrainMode = "steering"
	// DrainFollowUp appends prompts so earlier queued work finishes first.
	DrainFollowUp DrainMode = "follow_up"
)

// QueuedPrompt is a prompt held while a turn is in flight. The text is what
// the backend later echoes through message_start, which is what clients
// reconcile their scheduled messages against.
type QueuedPrompt struct {
	Text   string
	Images []string
}

// Queue holds prompts scheduled during streaming. Safe for concurrent use.
type Queue struct {
	mu    sync.Mutex
	items []QueuedPrompt
	mode  DrainMode
}

// NewQueue creates an empty queue in follow-up mode.
func NewQueue() *Queue {
	return &Queue{mode: DrainFollowUp}
}

// SetMode changes how Push places subsequent prompts.
func (q *Queue) SetMode(mode DrainMode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.mode = mode
}

// Mode returns the current drain mode.
func (q *Queue) Mode() DrainMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.mode
}

// Push queues a prompt according to the current mode.
func (q *Queue) Push(p QueuedPrompt) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.mode == DrainSteering {
		q.items = append([]QueuedPrompt{p}, q.items...)
	} else {
		q.items = append(q.items, p)
	}
}

// PushFront queues a prompt to run next regardless of mode (steer).
func (q *Queue) PushFront(p QueuedPrompt) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]QueuedPrompt{p}, q.items...)
}

// PushBack queues a prompt to run last regardless of mode (follow_up).
func (q *Queue) PushBack(p QueuedPrompt) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, p)
}

// Pop removes and returns the next prompt, if any.
func (q *Queue) Pop() (QueuedPrompt, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return QueuedPrompt{}, false
	}
	p := q.items[0]
	q.items = q.items[1:]
	return p, true
}

// Len returns the number of queued prompts.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}
