// Package watcher turns raw, name-only filesystem notifications into
// semantically precise, deduplicated events by re-reading entry metadata
// and correlating inode identity across bounded timing windows.
package watcher

// Kind classifies a semantic filesystem event. Every kind has a file and
// a directory variant.
type Kind string

const (
	KindCreatedFile  Kind = "created-file"
	KindCreatedDir   Kind = "created-dir"
	KindRemovedFile  Kind = "removed-file"
	KindRemovedDir   Kind = "removed-dir"
	KindModifiedFile Kind = "modified-file"
	KindModifiedDir  Kind = "modified-dir"
	KindRenamedFile  Kind = "renamed-file"
	KindRenamedDir   Kind = "renamed-dir"
)

// IsCreation reports whether k is a creation-class kind.
func (k Kind) IsCreation() bool {
	return k == KindCreatedFile || k == KindCreatedDir
}

// IsRemoval reports whether k is a removal-class kind.
func (k Kind) IsRemoval() bool {
	return k == KindRemovedFile || k == KindRemovedDir
}

// IsDir reports whether k is the directory variant of its kind.
func (k Kind) IsDir() bool {
	switch k {
	case KindCreatedDir, KindRemovedDir, KindModifiedDir, KindRenamedDir:
		return true
	}
	return false
}

func createdKind(isDir bool) Kind {
	if isDir {
		return KindCreatedDir
	}
	return KindCreatedFile
}

func removedKind(isDir bool) Kind {
	if isDir {
		return KindRemovedDir
	}
	return KindRemovedFile
}

func modifiedKind(isDir bool) Kind {
	if isDir {
		return KindModifiedDir
	}
	return KindModifiedFile
}

func renamedKind(isDir bool) Kind {
	if isDir {
		return KindRenamedDir
	}
	return KindRenamedFile
}

// Event is one semantic filesystem change. OldPath is set only on
// renames and carries the path the entry had before.
type Event struct {
	Kind    Kind
	Path    string
	OldPath string
}
