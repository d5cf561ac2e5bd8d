// Package events keeps the append-only journal of registry change records and
// fans them out to subscribers such as metrics collectors and the Kafka sink.
package events

import (
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ruteri/land-registry/interfaces"
	"go.uber.org/atomic"
)

// Journal implements interfaces.EventPublisher. Records are numbered from 1 in
// publish order and retained for catch-up reads.
type Journal struct {
	mutex       sync.RWMutex
	records     []interfaces.Event
	subscribers map[uint64]chan interfaces.Event
	nextSubID   uint64
	dropped     atomic.Uint64
	now         func() time.Time
	log         *slog.Logger
}

// NewJournal creates an empty journal.
func NewJournal(log *slog.Logger) *Journal {
	if log == nil {
		log = slog.Default()
	}
	return &Journal{
		subscribers: make(map[uint64]chan interfaces.Event),
		now:         time.Now,
		log:         log,
	}
}

// Publish appends the records and delivers them to subscribers. Delivery never
// blocks: a subscriber whose buffer is full misses the record, which it can
// recover through Since.
func (j *Journal) Publish(events ...interfaces.Event) {
	if len(events) == 0 {
		return
	}

	j.mutex.Lock()
	defer j.mutex.Unlock()

	for _, ev := range events {
		ev.Seq = uint64(len(j.records)) + 1
		if ev.Timestamp.IsZero() {
			ev.Timestamp = j.now().UTC()
		}
		if ev.Price != nil {
			ev.Price = new(big.Int).Set(ev.Price)
		}
		j.records = append(j.records, ev)

		for id, ch := range j.subscribers {
			select {
			case ch <- ev:
			default:
				j.dropped.Inc()
				j.log.Warn("Subscriber buffer full, record dropped",
					slog.Uint64("subscriber", id),
					slog.Uint64("seq", ev.Seq))
			}
		}
	}
}

// Since returns copies of all records with Seq greater than seq, oldest first.
func (j *Journal) Since(seq uint64) []interfaces.Event {
	j.mutex.RLock()
	defer j.mutex.RUnlock()

	if seq >= uint64(len(j.records)) {
		return []interfaces.Event{}
	}
	out := make([]interfaces.Event, len(j.records)-int(seq))
	copy(out, j.records[seq:])
	return out
}

// LastSeq returns the sequence number of the newest record, 0 when empty.
func (j *Journal) LastSeq() uint64 {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	return uint64(len(j.records))
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

// Subscribe registers a buffered channel receiving every record published from
// now on. The returned cancel function closes the channel.
func (j *Journal) Subscribe(buffer int) (<-chan interfaces.Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan interfaces.Event, buffer)

	j.mutex.Lock()
	id := j.nextSubID
	j.nextSubID++
	j.subscribers[id] = ch
	j.mutex.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			j.mutex.Lock()
			delete(j.subscribers, id)
			j.mutex.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Restore replaces the retained records, e.g. after loading a checkpoint.
// Subscribers are not notified.
func (j *Journal) Restore(records []interfaces.Event) {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	j.records = make([]interfaces.Event, len(records))
	copy(j.records, records)
	for i := range j.records {
		j.records[i].Seq = uint64(i) + 1
	}
}
