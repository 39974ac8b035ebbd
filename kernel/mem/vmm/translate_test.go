package vmm

import (
	"testing"

	"corvid/kernel/mem/pmm"
)

func TestTranslateResolvesMappedAddress(t *testing.T) {
	tables := mockTables(t)
	frame := pmm.Frame(55)
	tables[pageLevels-1][0].SetFlags(FlagPresent | FlagRW)
	tables[pageLevels-1][0].SetFrame(frame)

	got, err := Translate(0x1ab)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exp := frame.Address() + 0x1ab; got != exp {
		t.Errorf("expected translated address %#x; got %#x", exp, got)
	}
}

func TestTranslateOfUnmappedAddressFails(t *testing.T) {
	mockTables(t)

	if _, err := Translate(0); err != ErrInvalidMapping {
		t.Fatalf("expected ErrInvalidMapping; got %v", err)
	}
}

func TestTranslateRejectsHugePageIntermediate(t *testing.T) {
	tables := mockTables(t)
	tables[0][0].SetFlags(FlagHugePage)

	if _, err := Translate(0); err != errNoHugePageSupport {
		t.Fatalf("expected errNoHugePageSupport; got %v", err)
	}
}
