// Package kernel provides kernel handles and the programs that own them.
//
// A Program maps kernel symbols to their signatures, owns the table that
// memory-object handles are resolved in, and resolves device entry points
// through an EntryResolver. Each Kernel created from a program holds a
// reference on it and owns one params.State:
//
//	prog := kernel.NewProgram("blas", dev, sigs)
//	k, err := prog.NewKernel("saxpy")
//	if err != nil {
//	    return err
//	}
//	defer k.Close()
//
//	ep, err := k.DeviceEntryPoint(dev, true)
//
// Entry points are not cached by the kernel; every DeviceEntryPoint call
// goes to the resolver.
package kernel
