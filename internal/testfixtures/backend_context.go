package testfixtures

import "context"

type emailContextKey struct{}

func withEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailContextKey{}, email)
}

func emailFrom(ctx context.Context) string {
	email, _ := ctx.Value(emailContextKey{}).(string)
	return email
}
