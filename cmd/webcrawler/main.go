// Command webcrawler crawls a set of seed URLs breadth-first, respecting
// robots.txt and per-host politeness limits, and writes one PageRecord
// per fetched page to the configured storage back-end.
package main

import (
	cmd "github.com/corvidae/webcrawler/internal/cli"
)

func main() {
	cmd.Execute()
}
