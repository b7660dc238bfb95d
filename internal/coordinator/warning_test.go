package coordinator

import "testing"

func TestExtractWarning(t *testing.T) {
	cases := []struct {
		body string
		want string
		ok   bool
	}{
		{`Warning: "Your miner version is outdated"`, "Your miner version is outdated", true},
		{`{"job_id": null} Warning: upgrade soon`, "upgrade soon", true},
		{`Warning:   spaced  `, "spaced", true},
		{`Warning: first Warning: second`, "first", true},
		{`{"job_id":"j"}`, "", false},
		{``, "", false},
	}
	for _, tc := range cases {
		got, ok := ExtractWarning(tc.body)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ExtractWarning(%q) = %q, %v; want %q, %v", tc.body, got, ok, tc.want, tc.ok)
		}
	}
}
