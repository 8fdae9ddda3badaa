package engine

// broadcaster fans snapshots out to subscribers. Callers hold their own lock
// around every method.
type broadcaster[T any] struct {
	subscribers map[chan T]struct{}
	closed      bool
}

func newBroadcaster[T any]() *broadcaster[T] {
	return &broadcaster[T]{subscribers: make(map[chan T]struct{})}
}

// subscribe registers a channel primed with initial. After close it returns
// an already closed channel.
func (b *broadcaster[T]) subscribe(initial T) chan T {
	ch := make(chan T, 8)
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers[ch] = struct{}{}
	ch <- initial
	return ch
}

func (b *broadcaster[T]) unsubscribe(ch chan T) {
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

func (b *broadcaster[T]) publish(v T) {
	for ch := range b.subscribers {
		select {
		case ch <- v:
		default:
			// slow subscriber: replace the oldest pending value
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}

func (b *broadcaster[T]) close() {
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
}
