package pkg

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Env holds the distribution settings every install and check run depends on.
// SAGE_LOCAL is the installation prefix, SAGE_DESTDIR an optional staging root
// that receives the installed files instead of the live prefix.
type Env struct {
	Local   string
	DestDir string
}

// LoadEnv reads the SAGE_* variables from the process environment.
// A missing SAGE_LOCAL is a hard error; nothing else may run in that case.
func LoadEnv() (*Env, error) {
	local := os.Getenv("SAGE_LOCAL")
	if local == "" {
		return nil, eris.New("SAGE_LOCAL undefined; maybe run `sage -sh`?")
	}

	return &Env{
		Local:   filepath.Clean(local),
		DestDir: os.Getenv("SAGE_DESTDIR"),
	}, nil
}

// DestPrefix returns the directory installed files actually end up in. With a
// staging root set, the prefix is replicated below it (DESTDIR convention).
func (e *Env) DestPrefix() string {
	if e.DestDir == "" {
		return e.Local
	}

	// force the prefix to be interpreted as a subpath of the staging root
	rooted := filepath.Join(string(filepath.Separator), e.Local)
	return filepath.Join(filepath.Clean(e.DestDir), rooted)
}

// Exports returns the variables passed into the environment of every recipe
// task.
func (e *Env) Exports() map[string]string {
	return map[string]string{
		"SAGE_LOCAL":         e.Local,
		"SAGE_DESTDIR":       e.DestDir,
		"SAGE_DESTDIR_LOCAL": e.DestPrefix(),
	}
}
