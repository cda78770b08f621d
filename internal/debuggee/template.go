package debuggee

import (
	"os"
	"os/exec"
	"syscall"
)

// Template describes how every debuggee process is started.
type Template struct {
	// Path is the executable. A bare name is resolved against PATH.
	Path string
	Args []string
	// UID, when set, is the user id the child runs as. The daemon must have
	// the privilege to switch to it.
	UID *uint32
}

func (t Template) command() *exec.Cmd {
	cmd := exec.Command(t.Path, t.Args...) //nolint:gosec // G204: running the operator's command is the point
	cmd.SysProcAttr = &syscall.SysProcAttr{}
	setPdeathsig(cmd.SysProcAttr)
	if t.UID != nil {
		cmd.SysProcAttr.Credential = &syscall.Credential{
			Uid:         *t.UID,
			Gid:         uint32(os.Getgid()), //nolint:gosec // G115: gid is non-negative
			NoSetGroups: true,
		}
	}
	return cmd
}
