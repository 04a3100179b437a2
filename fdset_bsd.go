//go:build darwin || netbsd || freebsd || openbsd || dragonfly
// +build darwin netbsd freebsd openbsd dragonfly

package uev

import "golang.org/x/sys/unix"

// fdSetWordBits matches the BSD-family unix.FdSet representation: Bits is
// an array of int32 words, 32 descriptors each.
const fdSetWordBits = 32

func fdZero(s *unix.FdSet) {
	*s = unix.FdSet{}
}

func fdSet(s *unix.FdSet, fd int) {
	s.Bits[fd/fdSetWordBits] |= int32(1 << uint(fd%fdSetWordBits))
}

func fdIsSet(s *unix.FdSet, fd int) bool {
	return s.Bits[fd/fdSetWordBits]&int32(1<<uint(fd%fdSetWordBits)) != 0
}
