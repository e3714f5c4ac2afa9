//go:build !windows

package privilege

import "golang.org/x/sys/unix"

func queryAdministrators() (bool, error) {
	return false, ErrQueryUnavailable
}

func queryEffectiveRoot() (bool, error) {
	return unix.Geteuid() == 0, nil
}
