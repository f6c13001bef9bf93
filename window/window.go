package window

// Renderer is the presentation side of a Window. S is the renderer's handle
// for one live slot.
type Renderer[T, S any] interface {
	AddSlot() S
	RemoveSlot(slot S)
	Bind(slot S, index int, item T)
	SetSpacers(before, after float64)
	// MeasureSlot returns the laid-out height of slot, or 0 if unknown.
	MeasureSlot(slot S) float64
}

// Window keeps at most MaxCount slots bound to a contiguous range of items.
// It is not safe for concurrent use; a Scheduler serializes access.
type Window[T, S any] struct {
	r       Renderer[T, S]
	items   []T
	metrics Metrics
	scroll  float64

	slots    []S
	rendered Range
	dirty    bool
	layouts  int
}

func New[T, S any](r Renderer[T, S], m Metrics) *Window[T, S] {
	return &Window[T, S]{r: r, metrics: m, rendered: emptyRange, dirty: true}
}

// SetItems replaces the list.
func (w *Window[T, S]) SetItems(items []T) {
	w.items = append(w.items[:0:0], items...)
	w.dirty = true
}

// Append adds a loaded page to the end of the list.
func (w *Window[T, S]) Append(items ...T) {
	if len(items) == 0 {
		return
	}
	w.items = append(w.items, items...)
	w.dirty = true
}

func (w *Window[T, S]) SetMetrics(m Metrics) {
	if m != w.metrics {
		w.metrics = m
		w.dirty = true
	}
}

func (w *Window[T, S]) SetScroll(offset float64) { w.scroll = offset }

func (w *Window[T, S]) Len() int         { return len(w.items) }
func (w *Window[T, S]) Range() Range     { return w.rendered }
func (w *Window[T, S]) SlotCount() int   { return len(w.slots) }
func (w *Window[T, S]) Metrics() Metrics { return w.metrics }
func (w *Window[T, S]) Layouts() int     { return w.layouts }
func (w *Window[T, S]) Item(i int) T     { return w.items[i] }
func (w *Window[T, S]) Scroll() float64  { return w.scroll }

// Remaining is the distance from the bottom of the viewport to the end of
// the loaded content.
func (w *Window[T, S]) Remaining() float64 {
	return ContentHeight(len(w.items), w.metrics) - (w.scroll + w.metrics.Viewport)
}

// Render lays out the current range. Without force, or pending data and
// metrics changes, an unchanged range is left alone. It reports whether a
// layout happened.
func (w *Window[T, S]) Render(force bool) bool {
	rng := Compute(len(w.items), w.scroll, w.metrics)
	if !force && !w.dirty && rng == w.rendered {
		return false
	}
	w.layout(rng)

	if w.metrics.ItemHeight <= 0 && len(w.slots) > 0 {
		if h := w.r.MeasureSlot(w.slots[0]); h > 0 {
			w.metrics.ItemHeight = h
			w.layout(Compute(len(w.items), w.scroll, w.metrics))
		}
	}
	return true
}

func (w *Window[T, S]) layout(rng Range) {
	w.resize(rng.Len())
	for i, slot := range w.slots {
		idx := rng.Start + i
		w.r.Bind(slot, idx, w.items[idx])
	}
	w.r.SetSpacers(Spacers(len(w.items), rng, w.metrics))
	w.rendered = rng
	w.dirty = false
	w.layouts++
}

// resize grows or shrinks the slot pool to n, keeping existing slots.
func (w *Window[T, S]) resize(n int) {
	for len(w.slots) < n {
		w.slots = append(w.slots, w.r.AddSlot())
	}
	for len(w.slots) > n {
		last := len(w.slots) - 1
		w.r.RemoveSlot(w.slots[last])
		var zero S
		w.slots[last] = zero
		w.slots = w.slots[:last]
	}
}
