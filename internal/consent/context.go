package consent

import "context"

type contextKey string

const doNotTrackKey contextKey = "do_not_track"

// WithDoNotTrack marks the request context as carrying a Do Not Track
// signal. The HTTP layer sets this from the DNT header; the privacy
// filter reads it.
func WithDoNotTrack(ctx context.Context) context.Context {
	return context.WithValue(ctx, doNotTrackKey, true)
}

func IsDoNotTrack(ctx context.Context) bool {
	v, _ := ctx.Value(doNotTrackKey).(bool)
	return v
}
