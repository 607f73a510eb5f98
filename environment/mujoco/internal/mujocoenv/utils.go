//go:build mujoco
// +build mujoco

package mujocoenv

// #include <mujoco/mujoco.h>
// #include <stdlib.h>
import "C"

import (
	"fmt"
	"unsafe"
)

func loadXML(file string) (*C.mjModel, *C.mjData, error) {
	modelName := C.CString(file)
	defer C.free(unsafe.Pointer(modelName))

	var err [1000]C.char
	model := C.mj_loadXML(modelName, nil, &err[0], C.int(len(err)))
	if model == nil {
		return nil, nil, fmt.Errorf("could not construct model: %v",
			C.GoString(&err[0]))
	}

	data := C.mj_makeData(model)
	if data == nil {
		C.mj_deleteModel(model)
		return nil, nil, fmt.Errorf("could not construct mjData")
	}

	return model, data, nil
}

// F64SliceC2Go converts a copy of a C double array to a Go []float64
//
// See https://github.com/golang/go/wiki/cgo#turning-c-arrays-into-go-slices
func F64SliceC2Go(array *C.double, len int) []float64 {
	list := (*[1 << 30]float64)(unsafe.Pointer(array))[:len:len]

	newList := make([]float64, len)
	copy(newList, list)

	return newList
}
