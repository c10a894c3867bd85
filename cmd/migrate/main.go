package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"elaqe.org/internal/migrate"
	"elaqe.org/internal/obs"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("ELAQE_PG_DSN"), "PostgreSQL DSN")
	flag.Parse()

	logger, err := obs.NewLogger("development")
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.Sugar()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or ELAQE_PG_DSN")
	}
	if flag.NArg() == 0 {
		usage()
	}

	mgr, err := migrate.NewManager(*dsn, migrate.WithLogger(logger))
	if err != nil {
		log.Fatalw("open migrator", zap.Error(err))
	}
	defer func() { _ = mgr.Close() }()

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up()
	case "down":
		err = mgr.Down(intArg(1, 1))
	case "version":
		var (
			v     uint
			dirty bool
		)
		v, dirty, err = mgr.Version()
		if err == nil {
			fmt.Printf("version %d dirty=%t\n", v, dirty)
		}
	case "force":
		if flag.NArg() < 2 {
			usage()
		}
		err = mgr.Force(intArg(1, 0))
	default:
		usage()
	}
	if err != nil {
		log.Fatalw("migrate failed", "command", flag.Arg(0), zap.Error(err))
	}
}

func intArg(i, def int) int {
	if flag.NArg() <= i {
		return def
	}
	n, err := strconv.Atoi(flag.Arg(i))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid number %q\n", flag.Arg(i))
		os.Exit(2)
	}
	return n
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-dsn DSN] up | down [N] | version | force N\n", os.Args[0])
	os.Exit(2)
}
