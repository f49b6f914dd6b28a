package watcher

// inodeIndex is the reverse map from inode number to the set of paths
// currently believed to share it. It is mutated only by the Cache, under
// the Cache's lock, and stays exactly in sync with the path cache: a
// membership is added when metadata is stored and removed when it is
// cleared. Lookups are best effort identity hints, never an authority on
// existence.
type inodeIndex struct {
	paths map[uint64]map[string]struct{}
}

func newInodeIndex() *inodeIndex {
	return &inodeIndex{
		paths: make(map[uint64]map[string]struct{}),
	}
}

func (ix *inodeIndex) add(inode uint64, path string) {
	if inode == 0 {
		return
	}

	set, ok := ix.paths[inode]
	if !ok {
		set = make(map[string]struct{})
		ix.paths[inode] = set
	}
	set[path] = struct{}{}
}

func (ix *inodeIndex) remove(inode uint64, path string) {
	set, ok := ix.paths[inode]
	if !ok {
		return
	}

	delete(set, path)
	if len(set) == 0 {
		delete(ix.paths, inode)
	}
}

// otherPath returns some currently indexed path sharing inode that is
// not exclude. Which path wins when several qualify is unspecified.
func (ix *inodeIndex) otherPath(inode uint64, exclude string) (string, bool) {
	for path := range ix.paths[inode] {
		if path != exclude {
			return path, true
		}
	}
	return "", false
}

func (ix *inodeIndex) reset() {
	ix.paths = make(map[uint64]map[string]struct{})
}
