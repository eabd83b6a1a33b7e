package split

import "errors"

// ErrConfiguration marks a precondition failure detected before any file is
// copied: missing or empty source directories, an unexpected synthetic image
// count in strict mode, or a non-empty destination in staged mode.
var ErrConfiguration = errors.New("split configuration error")
