package results

import "errors"

// ErrUnknownCandidate indicates a promote request for an HTS code that is
// neither the primary nor any alternate of the result.
var ErrUnknownCandidate = errors.New("unknown candidate code")
