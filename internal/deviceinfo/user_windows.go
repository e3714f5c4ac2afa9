//go:build windows

package deviceinfo

import "github.com/yusufpapurcu/wmi"

type win32ComputerSystem struct {
	UserName string
}

func consoleUser() (string, error) {
	var rows []win32ComputerSystem
	if err := wmi.Query("SELECT UserName FROM Win32_ComputerSystem", &rows); err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", ErrUnavailable
	}
	return rows[0].UserName, nil
}
