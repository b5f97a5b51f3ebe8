package pathutil

import "testing"

func TestParent(t *testing.T) {
	cases := []struct {
		path   string
		parent string
		ok     bool
	}{
		{"/", "/", true},
		{"/etc/passwd", "/etc", true},
		{"/etc", "/", true},
		{"/a/b/c/z", "/a/b/c", true},
		{"nodir", "", false},
	}

	for _, c := range cases {
		parent, ok := Parent(c.path)
		if ok != c.ok || parent != c.parent {
			t.Errorf("Parent(%q) = (%q, %v), want (%q, %v)", c.path, parent, ok, c.parent, c.ok)
		}
	}
}

func TestBasename(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/etc/passwd", "passwd"},
		{"./steve", "steve"},
		{"/a////steve", "steve"},
		{"steve", "steve"},
		{"/", ""},
	}

	for _, c := range cases {
		if got := Basename(c.path); got != c.want {
			t.Errorf("Basename(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}
