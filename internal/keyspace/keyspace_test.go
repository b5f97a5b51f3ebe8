package keyspace

import "testing"

func TestAttrKey(t *testing.T) {
	c := New("skx")

	got := string(c.AttrKey(6, AttrName))
	want := "skx:INODE:6:NAME"
	if got != want {
		t.Errorf("AttrKey = %q, want %q", got, want)
	}
}

func TestDirentKey(t *testing.T) {
	c := New("skx")

	if got, want := string(c.DirentKey(43)), "skx:DIRENT:43"; got != want {
		t.Errorf("DirentKey = %q, want %q", got, want)
	}
	if got, want := string(c.DirentKey(RootInode)), "skx:DIRENT:-99"; got != want {
		t.Errorf("DirentKey(root) = %q, want %q", got, want)
	}
}

func TestCounterKey(t *testing.T) {
	c := New("skx")
	if got, want := string(c.CounterKey()), "skx:GLOBAL:INODE"; got != want {
		t.Errorf("CounterKey = %q, want %q", got, want)
	}
}
