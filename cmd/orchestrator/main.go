package main

import "github.com/LENAX/workflow-orchestrator/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
