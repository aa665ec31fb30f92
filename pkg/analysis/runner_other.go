//go:build !linux && !darwin

package analysis

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}
