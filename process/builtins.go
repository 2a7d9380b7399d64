package process

import (
	"strconv"
	"strings"
)

// runBuiltin evaluates the shell builtins synchronously. Returns
// handled=false when the command must be resolved to a module.
func (p *LazyProcess) runBuiltin() (code int, handled bool) {
	switch p.Command {
	case "echo":
		p.appendStdout(strings.Join(p.Args, " ") + "\n")
		return 0, true
	case "pwd":
		cwd := p.Cwd
		if cwd == "" {
			cwd = "/"
		}
		p.appendStdout(cwd + "\n")
		return 0, true
	case "true":
		return 0, true
	case "false":
		return 1, true
	case "exit":
		if len(p.Args) > 0 {
			if n, err := strconv.Atoi(p.Args[0]); err == nil {
				return n & 0xff, true
			}
		}
		return 0, true
	}
	return 0, false
}

func (p *LazyProcess) appendStdout(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.terminated {
		p.stdout.WriteString(s)
	}
}
