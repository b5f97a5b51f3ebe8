package hanwen

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/skx-redisfs/redisfs/vfs"
)

func initFS(t *testing.T) (mountPath string, srv *fuse.Server) {
	mr := miniredis.RunT(t)
	host, portStr, err := net.SplitHostPort(mr.Addr())
	if err != nil {
		t.Fatalf("split miniredis addr: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse miniredis port: %v", err)
	}

	mountPath = t.TempDir()
	logger, _ := zap.NewDevelopment()

	fsys := vfs.New(&vfs.Config{
		Host:   host,
		Port:   port,
		Prefix: "test",
		Logger: logger,
	})

	srv, err = New(&Config{
		FileSystem: fsys,
		MountPoint: mountPath,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("new hanwen fuse: %v", err)
	}

	go srv.Serve()
	if err := srv.WaitMount(); err != nil {
		t.Fatalf("wait mount: %v", err)
	}
	return
}

// TestMountBasicOperations exercises the create/write/read, mkdir/list,
// and unlink property scenarios of spec §8 through an actual FUSE
// mount, mirroring the teacher's mount-and-drive fs_test.go shape.
func TestMountBasicOperations(t *testing.T) {
	mountPath, srv := initFS(t)
	t.Cleanup(func() {
		_ = srv.Unmount()
	})

	filePath := filepath.Join(mountPath, "hello.txt")
	if err := os.WriteFile(filePath, []byte("hello world"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	got, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}

	dirPath := filepath.Join(mountPath, "sub")
	if err := os.Mkdir(dirPath, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	entries, err := os.ReadDir(mountPath)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	names := make(map[string]bool)
	for _, e := range entries {
		names[e.Name()] = true
	}
	if !names["hello.txt"] || !names["sub"] {
		t.Fatalf("readdir missing entries: %v", names)
	}

	if err := os.Remove(filePath); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if _, err := os.Stat(filePath); !os.IsNotExist(err) {
		t.Fatalf("expected file gone, got err=%v", err)
	}

	if err := os.Remove(dirPath); err != nil {
		t.Fatalf("rmdir: %v", err)
	}
}
