// Package launcher spawns and reaps the external emulator process bound
// to a session. Built on os/exec; there is nothing more to it than
// start, kill and wait.
package launcher

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/avdeyev/gamecast/internal/core"
	"github.com/avdeyev/gamecast/internal/domain"
)

// ExecLauncher runs the configured emulator command with {game} replaced
// by the subject's game id. One process per session.
type ExecLauncher struct {
	command string

	mu    sync.Mutex
	procs map[domain.SessionID]*exec.Cmd
}

func New(command string) *ExecLauncher {
	return &ExecLauncher{
		command: command,
		procs:   make(map[domain.SessionID]*exec.Cmd),
	}
}

func (l *ExecLauncher) Launch(ctx context.Context, sid domain.SessionID, subject domain.Subject) error {
	if l.command == "" {
		return fmt.Errorf("no emulator command configured")
	}
	fields := strings.Fields(l.command)
	args := make([]string, 0, len(fields))
	for _, f := range fields {
		args = append(args, strings.ReplaceAll(f, "{game}", string(subject.Game)))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.procs[sid]; ok {
		return nil
	}

	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %q: %w", args[0], err)
	}
	l.procs[sid] = cmd
	log.Info().Str("module", "launcher").Str("session", string(sid)).Str("cmd", args[0]).Int("pid", cmd.Process.Pid).Msg("emulator started")

	go l.reap(sid, cmd)
	return nil
}

func (l *ExecLauncher) Stop(sid domain.SessionID) bool {
	l.mu.Lock()
	cmd, ok := l.procs[sid]
	delete(l.procs, sid)
	l.mu.Unlock()
	if !ok {
		return false
	}
	if err := cmd.Process.Kill(); err != nil {
		log.Warn().Err(err).Str("module", "launcher").Str("session", string(sid)).Msg("kill emulator")
	}
	return true
}

func (l *ExecLauncher) IsRunning(sid domain.SessionID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.procs[sid]
	return ok
}

// reap waits for exit so the process never zombies, and drops the entry
// when the emulator dies on its own.
func (l *ExecLauncher) reap(sid domain.SessionID, cmd *exec.Cmd) {
	err := cmd.Wait()
	l.mu.Lock()
	delete(l.procs, sid)
	l.mu.Unlock()
	log.Info().Err(err).Str("module", "launcher").Str("session", string(sid)).Msg("emulator exited")
}

var _ core.Launcher = (*ExecLauncher)(nil)
