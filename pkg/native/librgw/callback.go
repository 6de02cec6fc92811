//go:build librgw && cgo

package librgw

/*
#include <stdbool.h>
#include <stdint.h>
#include <sys/stat.h>
*/
import "C"

import (
	"runtime/cgo"

	"github.com/objectfs/rgwbridge/pkg/native"
)

//export goReaddirEntry
func goReaddirEntry(name *C.char, arg C.uintptr_t, offset C.uint64_t, st *C.struct_stat, mask C.uint32_t, flags C.uint32_t) C.bool {
	fn := cgo.Handle(arg).Value().(native.ReaddirFunc)

	var stat *native.Stat
	if st != nil {
		s := toStat(st)
		stat = &s
	}
	return C.bool(fn(C.GoString(name), stat, native.SetattrMask(mask), native.LookupFlags(flags), uint64(offset)))
}
