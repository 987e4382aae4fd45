package registry

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// NextRevision returns the revision following prev, in the CouchDB style
// "<generation>-<random>". Stores that do not assign revisions themselves
// use it.
func NextRevision(prev string) string {
	gen := 0
	if i := strings.IndexByte(prev, '-'); i > 0 {
		gen, _ = strconv.Atoi(prev[:i])
	}
	return strconv.Itoa(gen+1) + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
