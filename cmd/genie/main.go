package main

import "github.com/vladip1/databricks-genie-mcp/cmd/genie/cli"

func main() {
	cli.Execute()
}
