package slotpool

// Iterator walks the occupied slots of a [Table] in increasing index
// order, skipping free slots.
//
// An Iterator is forward-only and single-pass: once it reaches the end it
// stays there, and a fresh iterator must be constructed to scan again.
// It provides no snapshot isolation. A slot freed ahead of the cursor
// between two [Iterator.Next] calls is skipped on this pass; a slot
// recycled ahead of the cursor is observed in whatever state it holds
// when the cursor reaches it.
type Iterator struct {
	table   *Table
	index   int    // -1 before the first Next, capacity at the end
	current Handle // handle of the current record, Nil at start and end
}

// NewIterator creates an iterator positioned before the first slot.
func NewIterator(t *Table) *Iterator {
	if t == nil {
		panic("slotpool: nil table")
	}

	return &Iterator{table: t, index: -1, current: Nil}
}

// Next advances to the next occupied slot and returns its record.
//
// At the end of the table it returns absent, pins the iterator to the
// terminal state, and every further call keeps returning absent.
func (it *Iterator) Next() ([]byte, bool) {
	t := it.table

	// Everything at or beyond the first-unallocated watermark is free,
	// so the scan can stop early.
	bound := t.capacity
	if t.valid && t.firstUnallocated < bound {
		bound = t.firstUnallocated
	}

	if t.valid {
		for slot := it.index + 1; slot < bound; slot++ {
			if t.bitmap[slot>>6]&(1<<(slot&63)) == 0 {
				continue
			}

			it.index = slot
			it.current = NewHandle(t.generationAt(slot), uint16(slot))

			return t.record(slot), true
		}
	}

	it.index = t.capacity
	it.current = Nil

	return nil, false
}

// Handle returns the handle of the record the iterator is positioned on,
// or [Nil] before the first call to [Iterator.Next] and at the end.
func (it *Iterator) Handle() Handle { return it.current }

// Index returns the slot index the iterator is positioned on: -1 before
// the first call to [Iterator.Next], the table capacity at the end.
func (it *Iterator) Index() int { return it.index }

// Equal reports structural equality: same table identity, same position,
// same current handle.
func (it *Iterator) Equal(other *Iterator) bool {
	return other != nil &&
		it.table == other.table &&
		it.index == other.index &&
		it.current == other.current
}
