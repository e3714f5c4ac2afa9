//go:build !windows

package deviceinfo

func consoleUser() (string, error) {
	return "", ErrUnavailable
}
