package artifacts

import "strings"

// Key prefix for artifact records. Kept short; Badger keys are raw bytes.
const (
	artifactPrefix = "art"
	keySeparator   = "/"
)

// makeArtifactKey generates the storage key for one artifact.
// Format: art/<book_id>/<stage>/<name>
func makeArtifactKey(k Key) []byte {
	return []byte(artifactPrefix + keySeparator + k.String())
}

// makeStagePrefix generates the key prefix covering every artifact of
// one book's stage. The trailing separator prevents a stage name from
// matching sibling stages that share a prefix.
func makeStagePrefix(bookID, stage string) []byte {
	return []byte(artifactPrefix + keySeparator + bookID + keySeparator + stage + keySeparator)
}

// parseArtifactKey reconstructs a Key from a storage key.
// Returns false if the key is not an artifact record.
func parseArtifactKey(raw []byte) (Key, bool) {
	parts := strings.SplitN(string(raw), keySeparator, 4)
	if len(parts) != 4 || parts[0] != artifactPrefix {
		return Key{}, false
	}
	return Key{BookID: parts[1], Stage: parts[2], Name: parts[3]}, true
}
