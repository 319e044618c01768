package fs

import (
	"os"

	"github.com/bobg/bsdrive"
)

// Dirent is a directory entry.
type Dirent struct {
	Name string
	Mode uint32 // os.FileMode bits
	Ref  bsdrive.Ref
	Size uint64 // file size; zero for dirs
}

// IsDir tells whether e refers to a directory.
// If it does, then e.Ref is the ref of a Dir.
// Otherwise it is the ref of a split.Node.
func (e *Dirent) IsDir() bool {
	return os.FileMode(e.Mode).IsDir()
}

// FileMode is e.Mode as an os.FileMode.
func (e *Dirent) FileMode() os.FileMode {
	return os.FileMode(e.Mode)
}
