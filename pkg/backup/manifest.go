package backup

import (
	"os"
	"time"
)

// ManifestName is the well-known name of the index entry inside an archive.
const ManifestName = "manifest.json"

// Entry describes one backed-up file inside an archive.
type Entry struct {
	// Target is the expanded absolute path the file came from and will
	// be restored to.
	Target string `json:"target"`
	// Name is the relative name the content is stored under in the
	// archive. Never absolute, never containing parent references.
	Name   string      `json:"name"`
	Mode   os.FileMode `json:"mode"`
	SHA256 string      `json:"sha256"`
}

// Manifest indexes an archive snapshot.
type Manifest struct {
	ConfigName string    `json:"config_name"`
	Timestamp  time.Time `json:"timestamp"`
	Entries    []Entry   `json:"entries"`
}
