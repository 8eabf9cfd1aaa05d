package field

// DoubleBuffer pairs two same-shaped fields so a pass can sample one while
// writing the other. Read always holds the newest version between passes.
type DoubleBuffer struct {
	read  *Field
	write *Field
	swaps uint64
}

func newDoubleBuffer(a, b *Field) *DoubleBuffer {
	return &DoubleBuffer{read: a, write: b}
}

// Read returns the field holding the current value.
func (d *DoubleBuffer) Read() *Field { return d.read }

// Write returns the field the next pass renders into.
func (d *DoubleBuffer) Write() *Field { return d.write }

// Swap exchanges the read and write handles. No texel data moves.
func (d *DoubleBuffer) Swap() {
	d.read, d.write = d.write, d.read
	d.swaps++
}

// Swaps returns how many times Swap has been called since allocation.
func (d *DoubleBuffer) Swaps() uint64 { return d.swaps }

// Valid reports whether both halves still refer to live storage.
func (d *DoubleBuffer) Valid() bool {
	return d != nil && d.read.Valid() && d.write.Valid()
}

func (d *DoubleBuffer) release() {
	d.read.release()
	d.write.release()
}
