package gating

// window is a fixed-capacity ring of boolean outcomes with an O(1) count of
// true entries. The oldest entry is evicted on overflow.
type window struct {
	buf   []bool
	start int
	size  int
	trues int
}

func newWindow(capacity int) *window {
	return &window{buf: make([]bool, clampWindow(capacity))}
}

func (w *window) push(v bool) {
	if w.size == len(w.buf) {
		if w.buf[w.start] {
			w.trues--
		}
		w.buf[w.start] = v
		w.start = (w.start + 1) % len(w.buf)
	} else {
		w.buf[(w.start+w.size)%len(w.buf)] = v
		w.size++
	}
	if v {
		w.trues++
	}
}

// entries returns the window contents oldest first.
func (w *window) entries() []bool {
	out := make([]bool, w.size)
	for i := range w.size {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// resize changes the capacity, keeping the most recent min(size, capacity)
// entries in order.
func (w *window) resize(capacity int) {
	capacity = clampWindow(capacity)
	if capacity == len(w.buf) {
		return
	}
	kept := w.entries()
	if len(kept) > capacity {
		kept = kept[len(kept)-capacity:]
	}
	w.buf = make([]bool, capacity)
	w.start = 0
	w.size = 0
	w.trues = 0
	for _, v := range kept {
		w.push(v)
	}
}

func (w *window) count() int { return w.trues }
