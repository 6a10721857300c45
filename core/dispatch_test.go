package core

import (
	"errors"
	"reflect"
	"testing"
)

func TestBindRejects(t *testing.T) {
	d := NewDispatcher()
	if _, err := d.Bind(1, "zero", 0, func() {}); !errors.Is(err, ErrTaskPriority) {
		t.Errorf("priority 0 = %v", err)
	}
	if _, err := d.Bind(1, "high", MaxTaskPriority+1, func() {}); !errors.Is(err, ErrTaskPriority) {
		t.Errorf("priority 16 = %v", err)
	}
	d.Bind(1, "a", 1, func() {})
	if _, err := d.Bind(1, "b", 2, func() {}); !errors.Is(err, ErrTaskBound) {
		t.Errorf("rebind = %v", err)
	}
}

func TestDispatchOrder(t *testing.T) {
	d := NewDispatcher()
	var order []string
	d.Bind(1, "low", 1, func() { order = append(order, "low") })
	d.Bind(2, "high", 3, func() { order = append(order, "high") })
	d.Bind(3, "mid", 2, func() { order = append(order, "mid") })

	d.Pend(1)
	d.Pend(2)
	d.Pend(3)
	d.Pend(99)
	if !d.Pending() {
		t.Fatal("nothing pending")
	}
	d.Dispatch()

	if want := []string{"high", "mid", "low"}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
	if d.Pending() || d.Current() != 0 {
		t.Errorf("after dispatch: pending %v current %d", d.Pending(), d.Current())
	}
}

func TestPreemption(t *testing.T) {
	d := NewDispatcher()
	var order []string
	d.Bind(2, "high", 3, func() { order = append(order, "high") })
	d.Bind(3, "peer", 1, func() { order = append(order, "peer") })
	d.Bind(1, "low", 1, func() {
		order = append(order, "low-start")
		d.Pend(2)
		d.Pend(3)
		order = append(order, "low-end")
	})

	d.Run(1)

	want := []string{"low-start", "high", "low-end", "peer"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestResourceCeiling(t *testing.T) {
	d := NewDispatcher()
	var order []string
	counter := NewResource(d, "counter", 0)

	high, _ := d.Bind(2, "high", 3, func() {
		counter.Lock(func(v *int) { *v += 10 })
		order = append(order, "high")
	})
	d.Bind(3, "top", 4, func() { order = append(order, "top") })
	low, _ := d.Bind(1, "low", 1, func() {
		counter.Lock(func(v *int) {
			*v++
			d.Pend(2)
			d.Pend(3)
			order = append(order, "locked")
		})
		order = append(order, "low-end")
	})
	counter.Share(low, high)

	if counter.Ceiling() != 3 {
		t.Fatalf("ceiling = %d, want 3", counter.Ceiling())
	}
	d.Run(1)

	want := []string{"top", "locked", "high", "low-end"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
	counter.Lock(func(v *int) {
		if *v != 11 {
			t.Errorf("counter = %d, want 11", *v)
		}
	})
	if high.Runs() != 1 || low.Runs() != 1 {
		t.Errorf("runs high=%d low=%d", high.Runs(), low.Runs())
	}
}
