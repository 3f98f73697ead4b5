package domain

import "context"

// Realm identifies which side of the privacy boundary a caller belongs to.
// Hospital-side callers may resolve tokens back to identity; processing-side
// callers may not.
type Realm string

const (
	// RealmHospital is the controlled domain where real identity may exist.
	RealmHospital Realm = "hospital"
	// RealmProcessing is the token-only domain. All analysis runs here.
	RealmProcessing Realm = "processing"
)

type realmKey struct{}

// WithCallerRealm returns a context carrying the caller's realm.
func WithCallerRealm(ctx context.Context, realm Realm) context.Context {
	return context.WithValue(ctx, realmKey{}, realm)
}

// CallerRealm extracts the caller's realm from the context.
// An absent realm defaults to RealmProcessing: callers must prove they are
// hospital-side, never the reverse.
func CallerRealm(ctx context.Context) Realm {
	if realm, ok := ctx.Value(realmKey{}).(Realm); ok {
		return realm
	}
	return RealmProcessing
}
