package checkpointer

import ts "github.com/supergus/ll-spinningup-clean/timestep"

// nStep implements checkpointing every N calls to Checkpoint
type nStep struct {
	interval int
	calls    int
	object   Serializable // Object to save

	// filename returns the string filename of the file to save the object
	// in.
	//
	// If each serialized object should be saved in a separate file with
	// each file having an incremented number as a suffix (e.g.
	// file1.bin, file2.bin, ..., fileK.bin), then simply use the
	// static function FilenameEnumerator, which will return a function
	// that will enumerate filenames.
	//
	// Otherwise, if each serialized object should be saved in a
	// separate file, but the filename does not matter, use the
	// static function FileTimer to generate the required naming
	// function. For example:
	//
	// n := NewNStep(10, object, FileTimer("filename", "bin"))
	filename func() string
}

// NewNStep returns a checkpointer that saves its tracked object every
// n calls to Checkpoint. The caller decides what one call means, e.g.
// an experiment may call Checkpoint once per epoch so that the object
// is saved every n epochs.
func NewNStep(n int, object Serializable,
	filename func() string) Checkpointer {
	return &nStep{
		interval: n,
		object:   object,
		filename: filename,
	}
}

// Checkpoint serializes the Checkpointer's tracked object if the
// checkpointing interval has elapsed
func (n *nStep) Checkpoint(ts.TimeStep) error {
	n.calls++
	if n.calls%n.interval != 0 {
		return nil
	}
	return save(n.filename(), n.object)
}
