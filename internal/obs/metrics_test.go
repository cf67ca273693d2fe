package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                  "/",
		"/metrics":                          "/metrics",
		"/v1/users":                         "/v1/users",
		"/v1/users/alice":                   "/v1/users/:username",
		"/v1/users/alice/permissions":       "/v1/users/:username/permissions",
		"/v1/users/alice/extra":             "/v1/users/alice/extra",
		"/v1/invites/01J0ABCD":              "/v1/invites/:code",
		"/v1/tokens/alice":                  "/v1/tokens/:username",
		"/v1/genres/genre-1":                "/v1/genres/:id",
		"/v1/genres":                        "/v1/genres",
		"/v1/invites?creator=alice&limit=5": "/v1/invites",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
