package debuggee

import "syscall"

// setPdeathsig makes the kernel kill the child if the daemon dies, so no
// debuggee outlives the process that owns its socket.
func setPdeathsig(attr *syscall.SysProcAttr) {
	attr.Pdeathsig = syscall.SIGKILL
}
