package speech

import (
	"sync"

	"github.com/liuscraft/orion-speech/internal/logging"
)

type delivery struct {
	sess *session
	fn   func()
}

// dispatcher delivers callbacks one at a time in enqueue order. Deliveries
// that belong to a cancelled session are dropped.
type dispatcher struct {
	mu     sync.Mutex
	queue  []delivery
	notify chan struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		notify: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) enqueue(s *session, fn func()) {
	d.mu.Lock()
	d.queue = append(d.queue, delivery{sess: s, fn: fn})
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()

		if len(batch) == 0 {
			select {
			case <-d.notify:
				continue
			case <-d.stopCh:
				return
			}
		}

		for _, item := range batch {
			if item.sess != nil && item.sess.cancelled.Load() {
				continue
			}
			d.deliver(item)
		}
	}
}

func (d *dispatcher) deliver(item delivery) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Errorf("speech: listener panic: %v", rec)
		}
	}()
	item.fn()
}

// stop lets the queue drain and then ends the goroutine. It does not wait.
func (d *dispatcher) stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}
