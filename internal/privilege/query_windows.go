//go:build windows

package privilege

import "golang.org/x/sys/windows"

func queryAdministrators() (bool, error) {
	var sid *windows.SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid)
	if err != nil {
		return false, err
	}
	defer windows.FreeSid(sid)

	return windows.Token(0).IsMember(sid)
}

func queryEffectiveRoot() (bool, error) {
	return false, ErrQueryUnavailable
}
