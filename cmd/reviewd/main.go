// Command reviewd runs the review orchestrator.
//
//	@title			Review Orchestrator API
//	@version		1.0
//	@description	Runs AI validations of issues and reviews of pull requests, streams progress over WebSocket, and keeps a re-review history.
//	@BasePath		/api/v1
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tbourn/review-orchestrator/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "reviewd:", err)
		os.Exit(1)
	}
}
