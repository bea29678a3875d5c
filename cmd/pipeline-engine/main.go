// Package main is the entry point for the pipeline-engine CLI.
package main

import "ciq/pipeline-engine/cmd"

func main() {
	cmd.Execute()
}
