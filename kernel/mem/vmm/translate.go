package vmm

import "corvid/kernel"

// Translate returns the physical address that virtAddr currently maps to,
// or ErrInvalidMapping if no L1 entry is present for it.
func Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	var (
		leaf *pageTableEntry
		err  *kernel.Error
	)

	walk(virtAddr, func(level uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		if level == pageLevels-1 {
			leaf = pte
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		return true
	})

	if err != nil {
		return 0, err
	}

	offset := virtAddr & ((1 << pageLevelShifts[pageLevels-1]) - 1)
	return leaf.Frame().Address() + offset, nil
}
