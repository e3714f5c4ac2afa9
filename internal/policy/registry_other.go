//go:build !windows

package policy

// RegistryWriter has no backing store off Windows.
type RegistryWriter struct{}

func DefaultWriter() Writer {
	return RegistryWriter{}
}

func (RegistryWriter) SetDWord(string, string, uint32) error {
	return ErrUnsupported
}
