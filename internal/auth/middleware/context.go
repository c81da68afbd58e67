package auth

import "context"

type ctxKey string

const (
	ctxKeySub     ctxKey = "sub"
	ctxKeyHubUser ctxKey = "hub_user"
)

func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, ctxKeySub, sub)
}

func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeySub).(string)
	return s
}

// WithHubUser records the user named by a verified hub login token.
func WithHubUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, ctxKeyHubUser, user)
}

func HubUserFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeyHubUser).(string)
	return s
}
