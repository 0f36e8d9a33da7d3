package query

// Store holds the in-progress aggregate state of one group. Slots are indexed
// by handles returned from Allocator.Allocate; a nil slot is empty.
type Store []any

// Allocator hands out slot handles to aggregate expressions and creates stores
// large enough to hold every slot allocated so far. It is not safe for
// concurrent use.
type Allocator struct {
	size int
}

// NewAllocator creates an Allocator with no slots.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// Allocate reserves a new slot and returns its handle. Handles are zero-based
// and strictly increasing.
func (a *Allocator) Allocate() int {
	handle := a.size
	a.size++
	return handle
}

// Size returns the number of slots allocated so far.
func (a *Allocator) Size() int {
	return a.size
}

// CreateStore returns an empty store sized for all current slots. Slots
// allocated later are not valid against this store.
func (a *Allocator) CreateStore() Store {
	return make(Store, a.size)
}
