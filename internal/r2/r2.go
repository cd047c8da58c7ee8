// Package r2 is the command channel to a radare2 process driven over
// r2pipe. From the dispatcher's perspective it is an opaque
// request/response service: send a command string, get text back.
package r2

import (
	"fmt"
	"strings"

	r2pipe "github.com/radareorg/r2pipe-go"

	"r2sleuth/internal/logging"
)

// Channel is the minimal surface the dispatcher and script executor need.
type Channel interface {
	Cmd(cmd string) (string, error)
}

// Session owns one radare2 process bound to a target binary.
type Session struct {
	pipe *r2pipe.Pipe
	file string
}

// Open spawns radare2 against the target file.
func Open(file string) (*Session, error) {
	logging.UserLog("Loading %s into radare2", file)
	pipe, err := r2pipe.NewPipe(file)
	if err != nil {
		return nil, fmt.Errorf("open %s with r2: %w", file, err)
	}
	return &Session{pipe: pipe, file: file}, nil
}

// Cmd runs one radare2 command and returns its raw output.
func (s *Session) Cmd(cmd string) (string, error) {
	out, err := s.pipe.Cmd(strings.TrimSpace(cmd))
	if err != nil {
		return "", err
	}
	return out, nil
}

// File returns the target binary path.
func (s *Session) File() string {
	return s.file
}

// Close shuts the radare2 process down.
func (s *Session) Close() error {
	return s.pipe.Close()
}
