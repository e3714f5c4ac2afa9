//go:build !windows

package visibility

func probe() Result {
	return Result{Outcome: Unsupported, Detail: "no service visibility controls on this platform"}
}
