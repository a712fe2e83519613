package config

import (
	"flag"
	"os"
	"time"

	"chatlink/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-e string   environment name (default from Config)
//	-i int      heartbeat interval in seconds (default from Config)
//	-g int      background grace window in seconds (default from Config)
//	-s string   local status endpoint address
//	-d string   local database path
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-e", "-i", "-g", "-s", "-d"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.Environment, "e", cfg.Environment, "environment name")
	heartbeat := fs.Int("i", int(cfg.HeartbeatInterval.Seconds()), "heartbeat interval (in seconds)")
	grace := fs.Int("g", int(cfg.BackgroundGrace.Seconds()), "background grace window (in seconds)")
	fs.StringVar(&cfg.StatusAddr, "s", cfg.StatusAddr, "status endpoint address")
	fs.StringVar(&cfg.DBPath, "d", cfg.DBPath, "local database path")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.HeartbeatInterval = time.Duration(*heartbeat) * time.Second
	cfg.BackgroundGrace = time.Duration(*grace) * time.Second
}
