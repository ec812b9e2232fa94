package cli

import (
	"fmt"
	"io"
	"os"
)

// Migrator is the subset of db.Migrator the command drives.
type Migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
}

// MigrateCommand runs one migration action and returns the exit code.
func MigrateCommand(m Migrator, action string, stdout, stderr io.Writer) int {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	var err error
	switch action {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "version":
	default:
		fmt.Fprintf(stderr, "migrate: unknown action %q (want up, down or version)\n", action)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "migrate %s: %v\n", action, err)
		return 1
	}
	version, dirty, err := m.Version()
	if err != nil {
		fmt.Fprintf(stderr, "migrate version: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "schema version %d (dirty=%t)\n", version, dirty)
	if dirty {
		return 1
	}
	return 0
}
