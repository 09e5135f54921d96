// Command assistant runs the voice assistant backend and its maintenance
// commands.
//
// @title       Voice Assistant API
// @version     1.0
// @description Conversational assistant with bilingual replies and segmented streaming speech synthesis.
// @BasePath    /
package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
