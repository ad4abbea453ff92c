package tunable

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// Tunable is a float parameter that can be read by the control loop while
// another goroutine adjusts it.  Step is the increment applied by Add.
type Tunable struct {
	Name string
	Step float64

	bits atomic.Uint64
}

func (t *Tunable) Add(steps int) {
	for {
		old := t.bits.Load()
		newV := math.Float64frombits(old) + float64(steps)*t.Step
		if t.bits.CompareAndSwap(old, math.Float64bits(newV)) {
			fmt.Printf("Tunable %s = %.5f\n", t.Name, newV)
			return
		}
	}
}

func (t *Tunable) Set(v float64) {
	t.bits.Store(math.Float64bits(v))
}

func (t *Tunable) Get() float64 {
	return math.Float64frombits(t.bits.Load())
}

func (t *Tunable) String() string {
	return fmt.Sprintf("%s=%.5f", t.Name, t.Get())
}

type Tunables struct {
	lock     sync.Mutex
	All      []*Tunable
	selected int
}

func (t *Tunables) Create(name string, value, step float64) *Tunable {
	newTunable := &Tunable{
		Name: name,
		Step: step,
	}
	newTunable.Set(value)

	t.lock.Lock()
	t.All = append(t.All, newTunable)
	t.lock.Unlock()
	return newTunable
}

// Find returns the tunable with the given name or nil.
func (t *Tunables) Find(name string) *Tunable {
	t.lock.Lock()
	defer t.lock.Unlock()
	for _, tu := range t.All {
		if tu.Name == name {
			return tu
		}
	}
	return nil
}

func (t *Tunables) SelectNext() {
	t.lock.Lock()
	t.selected++
	if t.selected >= len(t.All) {
		t.selected = 0
	}
	t.lock.Unlock()
	fmt.Println("Tunable", t.Current().Name, "selected, value:", t.Current().Get())
}

func (t *Tunables) SelectPrev() {
	t.lock.Lock()
	t.selected--
	if t.selected < 0 {
		t.selected = len(t.All) - 1
	}
	t.lock.Unlock()
	fmt.Println("Tunable", t.Current().Name, "selected, value:", t.Current().Get())
}

func (t *Tunables) Current() *Tunable {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.All[t.selected]
}
