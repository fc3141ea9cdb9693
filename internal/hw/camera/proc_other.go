//go:build !unix

package camera

import "os/exec"

// killGroupOnCancel relies on the default kill plus WaitDelay.
func killGroupOnCancel(cmd *exec.Cmd) {}
