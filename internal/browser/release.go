package browser

import (
	"errors"
	"sync"
)

// Releaser closes acquired resources in reverse order of acquisition,
// exactly once. The zero value is ready to use.
type Releaser struct {
	mu   sync.Mutex
	fns  []func() error
	once sync.Once
	err  error
}

// Add registers the release function for a newly acquired resource.
func (r *Releaser) Add(fn func() error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fns = append(r.fns, fn)
}

// Release runs every registered function, newest first, and joins their
// errors. Later calls return the first result without running anything.
func (r *Releaser) Release() error {
	r.once.Do(func() {
		r.mu.Lock()
		fns := r.fns
		r.fns = nil
		r.mu.Unlock()

		var errs []error
		for i := len(fns) - 1; i >= 0; i-- {
			if err := fns[i](); err != nil {
				errs = append(errs, err)
			}
		}
		r.err = errors.Join(errs...)
	})
	return r.err
}
