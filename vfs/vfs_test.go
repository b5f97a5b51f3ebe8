package vfs

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/skx-redisfs/redisfs/internal/inode"
)

func newTestFS(t *testing.T) (*FS, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	host, portStr, err := net.SplitHostPort(mr.Addr())
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)

	fs := New(&Config{
		Host:   host,
		Port:   port,
		Prefix: "test",
		Logger: zap.NewNop(),
	})
	return fs, mr
}

func TestCreateGetattr(t *testing.T) {
	fs, mr := newTestFS(t)
	defer mr.Close()

	ctx := context.Background()
	stat, err := fs.Create(ctx, "/hello.txt", 0644, 1000, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if stat.Type != inode.File || stat.Mode != inode.TypeBitsReg|0644 {
		t.Errorf("Create stat = %+v", stat)
	}

	got, err := fs.Getattr(ctx, "/hello.txt", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Ino != stat.Ino || got.UID != 1000 || got.GID != 1000 {
		t.Errorf("Getattr = %+v, want ino %d uid/gid 1000", got, stat.Ino)
	}
}

func TestCreateDuplicateRejected(t *testing.T) {
	fs, mr := newTestFS(t)
	defer mr.Close()

	ctx := context.Background()
	if _, err := fs.Create(ctx, "/a", 0644, 0, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Create(ctx, "/a", 0644, 0, 0); !errors.Is(err, ErrExists) {
		t.Errorf("second Create = %v, want ErrExists", err)
	}
}

func TestMkdirReaddir(t *testing.T) {
	fs, mr := newTestFS(t)
	defer mr.Close()

	ctx := context.Background()
	if _, err := fs.Mkdir(ctx, "/dir", 0755, 0, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Create(ctx, "/dir/file", 0644, 0, 0); err != nil {
		t.Fatal(err)
	}

	entries, err := fs.Readdir(ctx, "/dir")
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	for _, want := range []string{".", "..", "file"} {
		if !names[want] {
			t.Errorf("Readdir missing %q, got %v", want, names)
		}
	}
}

func TestReaddirUnresolvedPath(t *testing.T) {
	fs, mr := newTestFS(t)
	defer mr.Close()

	entries, err := fs.Readdir(context.Background(), "/nope")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Name != "." || entries[1].Name != ".." {
		t.Errorf("Readdir(missing) = %+v, want just . and ..", entries)
	}
}

func TestSymlinkReadlink(t *testing.T) {
	fs, mr := newTestFS(t)
	defer mr.Close()

	ctx := context.Background()
	stat, err := fs.Symlink(ctx, "/target", "/link", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if stat.Type != inode.Link {
		t.Errorf("Symlink stat.Type = %v, want Link", stat.Type)
	}

	target, err := fs.Readlink(ctx, "/link")
	if err != nil {
		t.Fatal(err)
	}
	if target != "/target" {
		t.Errorf("Readlink = %q, want /target", target)
	}
}

func TestWriteRead(t *testing.T) {
	fs, mr := newTestFS(t)
	defer mr.Close()

	ctx := context.Background()
	if _, err := fs.Create(ctx, "/f", 0644, 0, 0); err != nil {
		t.Fatal(err)
	}

	n, err := fs.Write(ctx, "/f", []byte("hello"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("Write returned %d, want 5", n)
	}

	data, err := fs.Read(ctx, "/f", 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("Read = %q, want %q", data, "hello")
	}

	if _, err := fs.Write(ctx, "/f", []byte("!!"), 5); err != nil {
		t.Fatal(err)
	}
	data, err = fs.Read(ctx, "/f", 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello!!" {
		t.Errorf("Read after append = %q, want %q", data, "hello!!")
	}

	stat, err := fs.Getattr(ctx, "/f", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if stat.Size != 7 {
		t.Errorf("Size = %d, want 7", stat.Size)
	}
}

func TestTruncateGrowsWithZeros(t *testing.T) {
	fs, mr := newTestFS(t)
	defer mr.Close()

	ctx := context.Background()
	if _, err := fs.Create(ctx, "/f", 0644, 0, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Write(ctx, "/f", []byte("ab"), 0); err != nil {
		t.Fatal(err)
	}

	if err := fs.Truncate(ctx, "/f", 5); err != nil {
		t.Fatal(err)
	}

	data, err := fs.Read(ctx, "/f", 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 5 || data[0] != 'a' || data[1] != 'b' || data[2] != 0 {
		t.Errorf("Truncate grow = %v, want [a b 0 0 0]", data)
	}

	if err := fs.Truncate(ctx, "/f", 1); err != nil {
		t.Fatal(err)
	}
	data, err = fs.Read(ctx, "/f", 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "a" {
		t.Errorf("Truncate shrink = %q, want %q", data, "a")
	}
}

func TestUnlinkThenNotFound(t *testing.T) {
	fs, mr := newTestFS(t)
	defer mr.Close()

	ctx := context.Background()
	if _, err := fs.Create(ctx, "/f", 0644, 0, 0); err != nil {
		t.Fatal(err)
	}
	if err := fs.Unlink(ctx, "/f"); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Getattr(ctx, "/f", 0, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("Getattr after Unlink = %v, want ErrNotFound", err)
	}
}

func TestRmdirRefusesNonEmpty(t *testing.T) {
	fs, mr := newTestFS(t)
	defer mr.Close()

	ctx := context.Background()
	if _, err := fs.Mkdir(ctx, "/dir", 0755, 0, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Create(ctx, "/dir/file", 0644, 0, 0); err != nil {
		t.Fatal(err)
	}

	if err := fs.Rmdir(ctx, "/dir"); !errors.Is(err, ErrNotEmpty) {
		t.Errorf("Rmdir(non-empty) = %v, want ErrNotEmpty", err)
	}

	if err := fs.Unlink(ctx, "/dir/file"); err != nil {
		t.Fatal(err)
	}
	if err := fs.Rmdir(ctx, "/dir"); err != nil {
		t.Errorf("Rmdir(empty) = %v, want nil", err)
	}
}

func TestRenamePreservesSubtree(t *testing.T) {
	fs, mr := newTestFS(t)
	defer mr.Close()

	ctx := context.Background()
	if _, err := fs.Mkdir(ctx, "/a", 0755, 0, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Create(ctx, "/a/f", 0644, 0, 0); err != nil {
		t.Fatal(err)
	}

	if err := fs.Rename(ctx, "/a", "/b"); err != nil {
		t.Fatal(err)
	}

	if _, err := fs.Getattr(ctx, "/a", 0, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("Getattr(/a) after rename = %v, want ErrNotFound", err)
	}

	stat, err := fs.Getattr(ctx, "/b/f", 0, 0)
	if err != nil {
		t.Fatalf("Getattr(/b/f) after rename = %v", err)
	}
	if stat.Type != inode.File {
		t.Errorf("stat.Type = %v, want File", stat.Type)
	}
}

func TestRenameRejectsExistingDestination(t *testing.T) {
	fs, mr := newTestFS(t)
	defer mr.Close()

	ctx := context.Background()
	if _, err := fs.Create(ctx, "/a", 0644, 0, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Create(ctx, "/b", 0644, 0, 0); err != nil {
		t.Fatal(err)
	}

	if err := fs.Rename(ctx, "/a", "/b"); !errors.Is(err, ErrExists) {
		t.Errorf("Rename onto existing = %v, want ErrExists", err)
	}
}

func TestReadOnlyRefusesMutation(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	host, portStr, err := net.SplitHostPort(mr.Addr())
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)

	fs := New(&Config{Host: host, Port: port, Prefix: "test", ReadOnly: true, Logger: zap.NewNop()})
	ctx := context.Background()

	if _, err := fs.Create(ctx, "/f", 0644, 0, 0); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Create on read-only = %v, want ErrReadOnly", err)
	}
	if _, err := fs.Mkdir(ctx, "/d", 0755, 0, 0); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Mkdir on read-only = %v, want ErrReadOnly", err)
	}
	if err := fs.Unlink(ctx, "/f"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Unlink on read-only = %v, want ErrReadOnly", err)
	}
}

func TestChmodChown(t *testing.T) {
	fs, mr := newTestFS(t)
	defer mr.Close()

	ctx := context.Background()
	if _, err := fs.Create(ctx, "/f", 0644, 0, 0); err != nil {
		t.Fatal(err)
	}

	if err := fs.Chmod(ctx, "/f", 0600); err != nil {
		t.Fatal(err)
	}
	uid := uint32(42)
	if err := fs.Chown(ctx, "/f", &uid, nil); err != nil {
		t.Fatal(err)
	}

	stat, err := fs.Getattr(ctx, "/f", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if stat.Mode != inode.TypeBitsReg|0600 {
		t.Errorf("Mode after Chmod = %o, want %o", stat.Mode, inode.TypeBitsReg|0600)
	}
	if stat.UID != 42 {
		t.Errorf("UID after Chown = %d, want 42", stat.UID)
	}
	if stat.GID != 0 {
		t.Errorf("GID after Chown(nil gid) = %d, want unchanged 0", stat.GID)
	}
}

func TestStressCreateAndDeleteAll(t *testing.T) {
	fs, mr := newTestFS(t)
	defer mr.Close()

	ctx := context.Background()
	const n = 50
	names := make([]string, n)
	for i := 0; i < n; i++ {
		name := "/f" + strconv.Itoa(i)
		names[i] = name
		if _, err := fs.Create(ctx, name, 0644, 0, 0); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	entries, err := fs.Readdir(ctx, "/")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != n+2 {
		t.Fatalf("Readdir returned %d entries, want %d", len(entries), n+2)
	}

	for _, name := range names {
		if err := fs.Unlink(ctx, name); err != nil {
			t.Fatalf("unlink %s: %v", name, err)
		}
	}

	entries, err = fs.Readdir(ctx, "/")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("Readdir after deleting all returned %d entries, want 2", len(entries))
	}

	keys := mr.Keys()
	if len(keys) != 1 {
		t.Errorf("expected only the global inode counter key to remain, got %d keys: %v", len(keys), keys)
	}
}
