package engine

// A grid order id packs the owning grid, the slot's side, and its global
// per-side index into one uint64:
//
//	bits 33..63  grid id (31 bits)
//	bit  32      side flag (1 = ask)
//	bits 0..31   local index (32 bits)
//
// Decoding needs no table lookup, and because local indices come from two
// disjoint global counters the ids are unique across all grids and sides.

const (
	orderIDGridShift = 33
	orderIDAskBit    = uint64(1) << 32
	orderIDIndexMask = uint64(1)<<32 - 1
)

// EncodeOrderID builds the packed id for a (grid, side, index) slot.
func EncodeOrderID(gridID uint64, isAsk bool, localIndex uint64) uint64 {
	id := gridID<<orderIDGridShift | (localIndex & orderIDIndexMask)
	if isAsk {
		id |= orderIDAskBit
	}
	return id
}

// DecodeOrderID splits a packed order id into its components.
func DecodeOrderID(orderID uint64) (gridID uint64, localIndex uint64, isAsk bool) {
	return orderID >> orderIDGridShift, orderID & orderIDIndexMask, orderID&orderIDAskBit != 0
}
