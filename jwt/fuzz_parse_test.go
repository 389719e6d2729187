package jwt

import (
	"testing"
	"time"
)

// FuzzJWTParseAccess exercises the parser with arbitrary token strings.
// Goal: no panics; invalid inputs must be rejected with errors.
func FuzzJWTParseAccess(f *testing.F) {
	mgr, err := NewManager(Config{
		AccessTTL:  5 * time.Minute,
		PrivateKey: []byte(testSecret),
		Issuer:     "fuzz-test",
		Audience:   "fuzz-test",
		Leeway:     30 * time.Second,
	})
	if err != nil {
		f.Fatal(err)
	}

	f.Add("")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJub25lIn0.eyJzdWIiOiJ4In0.")
	f.Add("eyJhbGciOiJIUzI1NiJ9.e30.invalidsig")

	f.Fuzz(func(t *testing.T, token string) {
		claims, err := mgr.ParseAccess(token)
		if err == nil && claims == nil {
			t.Fatal("nil claims without error")
		}
	})
}
