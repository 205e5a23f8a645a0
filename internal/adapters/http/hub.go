package httpadapter

import (
	"sync"

	"github.com/sirupsen/logrus"

	"gonephishing/internal/ports"
)

const subscriberBuffer = 64

// Hub fans task updates out to websocket subscribers of a job.
type Hub struct {
	mu   sync.Mutex
	subs map[int64]map[chan ports.TaskUpdate]struct{}
	log  *logrus.Entry
}

func NewHub(log *logrus.Entry) *Hub {
	return &Hub{subs: make(map[int64]map[chan ports.TaskUpdate]struct{}), log: log.WithField("component", "hub")}
}

func (h *Hub) Subscribe(jobID int64) chan ports.TaskUpdate {
	ch := make(chan ports.TaskUpdate, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[chan ports.TaskUpdate]struct{})
	}
	h.subs[jobID][ch] = struct{}{}
	return ch
}

func (h *Hub) Unsubscribe(jobID int64, ch chan ports.TaskUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[jobID]
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(h.subs, jobID)
	}
}

// Publish never blocks the worker; a subscriber that is not keeping up
// misses updates.
func (h *Hub) Publish(u ports.TaskUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[u.JobID] {
		select {
		case ch <- u:
		default:
			h.log.WithField("job_id", u.JobID).Warn("dropping update for slow subscriber")
		}
	}
}
