//go:build windows

package policy

import (
	"errors"

	"golang.org/x/sys/windows/registry"
)

// RegistryWriter writes to HKEY_LOCAL_MACHINE.
type RegistryWriter struct{}

func DefaultWriter() Writer {
	return RegistryWriter{}
}

func (RegistryWriter) SetDWord(path, name string, value uint32) error {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, path, registry.SET_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return ErrKeyNotFound
		}
		return err
	}
	defer k.Close()
	return k.SetDWordValue(name, value)
}
