// Command crawlserv is the standalone server binary (spec §6): it loads a
// key=value configuration file, opens the shared Store, resurrects every
// surviving Worker, serves the JSON control endpoint, and shuts down
// cleanly on SIGINT/SIGTERM or an authenticated "kill" command.
//
// Grounded on theaidguild-kirk-ai/cmd/root.go's cobra root command plus
// main.go calling cmd.Execute(), the only cobra-CLI precedent in the
// example pack.
package main

import "github.com/crawlserv/crawlservpp-sub001/cmd/crawlserv/cmd"

func main() {
	cmd.Execute()
}
