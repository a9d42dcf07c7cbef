package webhook

import "sync"

const (
	DefaultDedupeMax   = 1000
	DefaultDedupeEvict = 500
)

// Deduper registra los event ids ya despachados. Al superar max entradas
// descarta las evict más antiguas por orden de inserción (no es LRU): un
// evento fuera de esa ventana puede volver a procesarse.
type Deduper struct {
	max   int
	evict int

	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

func NewDeduper(maxEntries, evict int) *Deduper {
	if maxEntries <= 0 {
		maxEntries = DefaultDedupeMax
	}
	if evict <= 0 || evict > maxEntries {
		evict = DefaultDedupeEvict
		if evict > maxEntries {
			evict = maxEntries
		}
	}
	return &Deduper{max: maxEntries, evict: evict, seen: make(map[string]struct{}, maxEntries+1)}
}

// ShouldProcess devuelve true y registra eventID si no fue visto; false si ya estaba.
func (d *Deduper) ShouldProcess(eventID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[eventID]; ok {
		return false
	}
	d.seen[eventID] = struct{}{}
	d.order = append(d.order, eventID)

	if len(d.order) > d.max {
		for _, id := range d.order[:d.evict] {
			delete(d.seen, id)
		}
		d.order = append(make([]string, 0, d.max+1), d.order[d.evict:]...)
	}
	return true
}

// Forget quita eventID del registro para que una reentrega vuelva a
// despacharse. Se usa cuando el evento no llegó a encolarse.
func (d *Deduper) Forget(eventID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[eventID]; !ok {
		return
	}
	delete(d.seen, eventID)
	for i, id := range d.order {
		if id == eventID {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}
