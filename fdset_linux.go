//go:build linux
// +build linux

package uev

import "golang.org/x/sys/unix"

// fdSetWordBits matches the linux unix.FdSet representation: Bits is an
// array of int64 words, 64 descriptors each.
const fdSetWordBits = 64

func fdZero(s *unix.FdSet) {
	*s = unix.FdSet{}
}

func fdSet(s *unix.FdSet, fd int) {
	s.Bits[fd/fdSetWordBits] |= 1 << uint(fd%fdSetWordBits)
}

func fdIsSet(s *unix.FdSet, fd int) bool {
	return s.Bits[fd/fdSetWordBits]&(1<<uint(fd%fdSetWordBits)) != 0
}
