package chat

import "errors"

// ErrEmptyResponse is an internal marker; user-visible text is always the
// friendly fallback strings in the loop.
var ErrEmptyResponse = errors.New("empty model response")

// apologyText is the synthesized terminal message when every recovery path
// is exhausted.
const apologyText = "I'm sorry, I ran into trouble completing that request. Please try again in a moment."

// abortedText is the terminal message for a user-requested cancellation.
const abortedText = "Stopped. I won't take any further actions for this request."
