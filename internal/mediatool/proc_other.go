//go:build !windows

package mediatool

import "os/exec"

func hideConsole(*exec.Cmd) {}
