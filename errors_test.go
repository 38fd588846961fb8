package gfio

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
)

func TestErrorCodes(t *testing.T) {
	err := NewError(ErrInvalid, "negative offset %d", -1)
	if err.Error() != "gfio: invalid argument: negative offset -1" {
		t.Fatalf("message: %q", err.Error())
	}
	if Code(err) != ErrInvalid || !IsInvalid(err) || IsInvalidState(err) || IsIOError(err) {
		t.Fatalf("classification of %v", err)
	}

	state := errClosed("file")
	if !IsInvalid(state) || !IsInvalidState(state) {
		t.Fatalf("closed error not invalid state: %v", state)
	}

	if Code(nil) != Success {
		t.Fatal("nil error has a code")
	}
	if Code(errors.New("other")) != ErrUnknown {
		t.Fatal("foreign error has a gfio code")
	}
	if ErrorCode(99).String() != "error code 99" {
		t.Fatalf("unknown code string: %s", ErrorCode(99))
	}
}

func TestWrapError(t *testing.T) {
	err := WrapError(ErrIO, fs.ErrNotExist, "failed to open local file '%s'", "/x")
	if !strings.HasSuffix(err.Error(), ": file does not exist") {
		t.Fatalf("message: %q", err.Error())
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatal("cause not unwrapped")
	}
	if !errors.Is(err, &Error{Code: ErrIO}) {
		t.Fatal("code not matched by errors.Is")
	}
	if errors.Is(err, &Error{Code: ErrInvalid}) {
		t.Fatal("different code matched")
	}
	if !IsIOError(err) {
		t.Fatal("not an I/O error")
	}
}

func TestNotImplemented(t *testing.T) {
	if !IsNotImplemented(NewError(ErrNotImplemented, "peek")) {
		t.Fatal("not implemented not detected")
	}
}

func TestCheckRange(t *testing.T) {
	if err := checkRange(0, 0); err != nil {
		t.Fatal(err)
	}
	if Code(checkRange(-1, 0)) != ErrInvalid || Code(checkRange(0, -1)) != ErrInvalid {
		t.Fatal("negative range accepted")
	}
}

func TestModeString(t *testing.T) {
	for mode, want := range map[FileMode]string{
		ModeRead:      "read",
		ModeWrite:     "write",
		ModeReadWrite: "readwrite",
		FileMode(7):   "FileMode(7)",
	} {
		if mode.String() != want {
			t.Errorf("%d: got %s, want %s", int(mode), mode, want)
		}
	}
}
