package config

import "github.com/namsral/flag"

// Config holds the server's command-line settings. Flags can also be
// supplied as environment variables (ADDR, AI_DEPTH, DEBUG).
type Config struct {
	Addr    string
	AIDepth int
	Debug   bool
}

func (c *Config) Load(args []string) error {
	fs := flag.NewFlagSet("tictactoe", flag.ContinueOnError)
	fs.StringVar(&c.Addr, "addr", ":8080", "address to listen on")
	fs.IntVar(&c.AIDepth, "ai-depth", 9, "default engine search depth, 1 (easiest) to 9 (perfect)")
	fs.BoolVar(&c.Debug, "debug", false, "enable debug logging")
	return fs.Parse(args)
}
