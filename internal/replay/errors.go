package replay

import "errors"

// ErrUnknownEventType is returned for script lines whose type is not a
// known event kind.
var ErrUnknownEventType = errors.New("unknown event type")
