// Package main is the terminal client for voicelink.
//
// Usage:
//
//	voicectl [flags] <command> [args]
//
// Commands:
//
//	connect  - Start a voice session and stream the transcript
//	probe    - Ask the token backend whether voice is offered
//	presets  - List voices and agent presets
package main

import (
	"fmt"
	"os"

	"voicelink/cmd/voicectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
