package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/skx-redisfs/redisfs/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		addr      = flag.String("addr", "localhost:6379", "backing-store address")
		oldPrefix = flag.String("old-prefix", "", "prefix to clone from (required)")
		newPrefix = flag.String("new-prefix", "", "prefix to clone into (required)")
	)
	flag.Parse()

	if *oldPrefix == "" || *newPrefix == "" {
		fmt.Fprintln(os.Stderr, "both --old-prefix and --new-prefix are required")
		return 1
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	host, portStr, err := net.SplitHostPort(*addr)
	if err != nil {
		logger.Error("parse addr", zap.String("addr", *addr), zap.Error(err))
		return 1
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		logger.Error("parse port", zap.String("port", portStr), zap.Error(err))
		return 1
	}

	c := store.New(host, port, logger)
	ctx := context.Background()
	c.EnsureAlive(ctx)

	keys, err := c.Keys(ctx, *oldPrefix+"*")
	if err != nil {
		logger.Error("enumerate keys", zap.Error(err))
		return 1
	}

	for _, key := range keys {
		suffix := strings.TrimPrefix(key, *oldPrefix)
		newKey := *newPrefix + suffix

		typ, err := c.Type(ctx, key)
		if err != nil {
			logger.Error("type", zap.String("key", key), zap.Error(err))
			return 1
		}

		switch typ {
		case "string":
			v, err := c.Get(ctx, []byte(key))
			if err != nil {
				logger.Error("get", zap.String("key", key), zap.Error(err))
				return 1
			}
			if err := c.Set(ctx, []byte(newKey), v); err != nil {
				logger.Error("set", zap.String("key", newKey), zap.Error(err))
				return 1
			}
		case "set":
			members, err := c.SMembers(ctx, []byte(key))
			if err != nil {
				logger.Error("smembers", zap.String("key", key), zap.Error(err))
				return 1
			}
			for _, m := range members {
				if err := c.SAdd(ctx, []byte(newKey), m); err != nil {
					logger.Error("sadd", zap.String("key", newKey), zap.Error(err))
					return 1
				}
			}
		default:
			logger.Error("unexpected key type, aborting", zap.String("key", key), zap.String("type", typ))
			return 1
		}
	}

	logger.Info("snapshot complete",
		zap.String("old-prefix", *oldPrefix),
		zap.String("new-prefix", *newPrefix),
		zap.Int("keys", len(keys)))
	return 0
}
