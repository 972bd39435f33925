// Command crawler is the docs-crawler CLI entrypoint.
package main

import (
	cmd "github.com/fetchward/crawlkit/internal/cli"
)

func main() {
	cmd.Execute()
}
