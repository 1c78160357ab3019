package internal

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
)

// MemProfile writes the heap and allocs profiles of the running process to dir.
//
// Profiles are named after prefix. An existing profile is never overwritten.
func MemProfile(dir, prefix string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	runtime.GC()
	for _, name := range []string{"heap", "allocs"} {
		path := filepath.Join(dir, strings.Join([]string{prefix, name, "prof"}, "."))
		if err := writeProfIfNExist(path, name); err != nil {
			return err
		}
	}
	return nil
}

func writeProfIfNExist(path string, name string) error {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return err
	}
	fprof, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer fprof.Close()
	return pprof.Lookup(name).WriteTo(fprof, 0)
}
