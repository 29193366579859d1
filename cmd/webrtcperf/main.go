// cmd/webrtcperf/main.go
package main

import (
	"github.com/Spin-gaming/webrtcperf/internal/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// main starts the webrtcperf CLI by delegating to the cobra root command
// defined in the commands package.
func main() {
	commands.SetVersionInfo(version, commit, date)
	commands.Execute()
}
