// Command sessionmcp is the entry point for the local session-retrieval
// MCP server and its bulk-indexing CLI surface.
package main

import (
	"os"

	"github.com/sessionmcp/sessionmcp/cmd/sessionmcp/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
