package main

import (
	"fmt"
	"os"
	"strconv"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/skx-redisfs/redisfs/fuse/hanwen"
	"github.com/skx-redisfs/redisfs/vfs"
)

// version is set by the release process; unset for development builds.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		host     = flag.String("host", "localhost", "backing-store host")
		port     = flag.Int("port", 6379, "backing-store port")
		mount    = flag.String("mount", "/mnt/redis", "mount point")
		prefix   = flag.String("prefix", "skx", "key prefix")
		readOnly = flag.Bool("read-only", false, "refuse mutating operations")
		fast     = flag.Bool("fast", false, "skip atime updates and mtime updates on appending writes")
		debug    = flag.Bool("debug", false, "enable debug logging")
		pidFile  = flag.String("pid-file", "", "write the process ID to this file")
		showVer  = flag.Bool("version", false, "print the version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println("redisfs " + version)
		return 0
	}

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "build logger:", err)
		return 1
	}
	defer logger.Sync()

	if os.Geteuid() != 0 {
		logger.Error("redisfs must run as root to mount a FUSE filesystem")
		return 1
	}

	info, err := os.Stat(*mount)
	if err != nil || !info.IsDir() {
		logger.Error("mount point is not a directory", zap.String("mount", *mount), zap.Error(err))
		return 1
	}

	if *pidFile != "" {
		if err := writePIDFile(*pidFile); err != nil {
			logger.Error("write pid file", zap.String("path", *pidFile), zap.Error(err))
			return 1
		}
		defer os.Remove(*pidFile)
	}

	fsys := vfs.New(&vfs.Config{
		Host:     *host,
		Port:     *port,
		Prefix:   *prefix,
		ReadOnly: *readOnly,
		Fast:     *fast,
		Logger:   logger,
	})

	srv, err := hanwen.New(&hanwen.Config{
		FileSystem: fsys,
		MountPoint: *mount,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("mount", zap.String("mount", *mount), zap.Error(err))
		return 1
	}

	logger.Info("mounted",
		zap.String("mount", *mount),
		zap.String("host", *host),
		zap.Int("port", *port),
		zap.String("prefix", *prefix),
		zap.Bool("read-only", *readOnly),
		zap.Bool("fast", *fast),
	)

	srv.Serve()
	return 0
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}
