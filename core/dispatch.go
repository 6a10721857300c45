package core

import "errors"

var (
	ErrTaskBound    = errors.New("dispatch: interrupt already bound")
	ErrTaskPriority = errors.New("dispatch: priority must be 1..15")
)

// IRQ identifies a task trigger. Values below SoftwareIRQBase are NVIC
// interrupt numbers; values from SoftwareIRQBase up are software tasks that
// only run when pended.
type IRQ uint16

const SoftwareIRQBase IRQ = 256

// MaxTaskPriority is the highest task priority. Priority 0 is the idle
// (main loop) level.
const MaxTaskPriority = 15

// Task is a handler bound to an interrupt at a fixed priority.
type Task struct {
	Name     string
	IRQ      IRQ
	Priority uint8
	Handler  func()

	pending bool
	runs    uint32
}

// Runs returns how many times the task has completed.
func (t *Task) Runs() uint32 { return t.runs }

// Dispatcher runs tasks by priority. A pended task runs as soon as its
// priority exceeds the running priority; tasks of equal priority never
// preempt each other and run in the order they were bound.
type Dispatcher struct {
	tasks   []*Task
	byIRQ   map[IRQ]*Task
	current uint8
	depth   int
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{byIRQ: make(map[IRQ]*Task)}
}

// Bind attaches handler to irq at priority.
func (d *Dispatcher) Bind(irq IRQ, name string, priority uint8, handler func()) (*Task, error) {
	if priority == 0 || priority > MaxTaskPriority {
		return nil, ErrTaskPriority
	}
	if _, ok := d.byIRQ[irq]; ok {
		return nil, ErrTaskBound
	}
	t := &Task{Name: name, IRQ: irq, Priority: priority, Handler: handler}
	d.tasks = append(d.tasks, t)
	d.byIRQ[irq] = t
	return t, nil
}

// Task returns the task bound to irq.
func (d *Dispatcher) Task(irq IRQ) (*Task, bool) {
	t, ok := d.byIRQ[irq]
	return t, ok
}

// Tasks returns the bound tasks in bind order.
func (d *Dispatcher) Tasks() []*Task {
	return d.tasks
}

// Current returns the running priority.
func (d *Dispatcher) Current() uint8 {
	return d.current
}

// Pend marks irq pending. Called from inside a task, a higher priority
// task runs immediately; otherwise it waits for the next Dispatch.
// Unbound interrupts are ignored.
func (d *Dispatcher) Pend(irq IRQ) {
	state := disableInterrupts()
	t, ok := d.byIRQ[irq]
	if ok {
		t.pending = true
	}
	restoreInterrupts(state)
	if ok && d.depth > 0 {
		d.Dispatch()
	}
}

// Run is the entry point for a hardware interrupt handler.
func (d *Dispatcher) Run(irq IRQ) {
	d.Pend(irq)
	if d.depth == 0 {
		d.Dispatch()
	}
}

// Pending reports whether any task is waiting to run.
func (d *Dispatcher) Pending() bool {
	for _, t := range d.tasks {
		if t.pending {
			return true
		}
	}
	return false
}

// Dispatch runs pending tasks whose priority exceeds the running priority,
// highest first, until none remain.
func (d *Dispatcher) Dispatch() {
	for {
		t := d.next()
		if t == nil {
			return
		}
		d.runTask(t)
	}
}

func (d *Dispatcher) next() *Task {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	var best *Task
	for _, t := range d.tasks {
		if !t.pending || t.Priority <= d.current {
			continue
		}
		if best == nil || t.Priority > best.Priority {
			best = t
		}
	}
	if best != nil {
		best.pending = false
	}
	return best
}

func (d *Dispatcher) runTask(t *Task) {
	prev := d.current
	d.current = t.Priority
	d.depth++
	t.Handler()
	t.runs++
	d.depth--
	d.current = prev
}

// Resource guards state shared between tasks of different priorities.
// Access goes through Lock, which raises the running priority to the
// resource ceiling for the duration of the closure.
type Resource[T any] struct {
	d       *Dispatcher
	name    string
	ceiling uint8
	value   T
}

// NewResource creates a resource holding v.
func NewResource[T any](d *Dispatcher, name string, v T) *Resource[T] {
	return &Resource[T]{d: d, name: name, value: v}
}

// Share declares that tasks use the resource; the ceiling becomes the
// highest of their priorities.
func (r *Resource[T]) Share(tasks ...*Task) *Resource[T] {
	for _, t := range tasks {
		if t.Priority > r.ceiling {
			r.ceiling = t.Priority
		}
	}
	return r
}

// Ceiling returns the resource's priority ceiling.
func (r *Resource[T]) Ceiling() uint8 {
	return r.ceiling
}

// Lock runs fn with exclusive access to the value. Tasks pended meanwhile
// whose priority does not exceed the ceiling run after fn returns.
func (r *Resource[T]) Lock(fn func(v *T)) {
	state := disableInterrupts()
	prev := r.d.current
	if r.ceiling > prev {
		r.d.current = r.ceiling
	}
	r.d.depth++
	fn(&r.value)
	r.d.depth--
	r.d.current = prev
	restoreInterrupts(state)
	r.d.Dispatch()
}
