// battlectl - Quarrel Labs battle history admin CLI
package main

import (
	"fmt"
	"os"

	"github.com/ashureev/quarrel-labs/internal/battlectl"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if err := battlectl.NewRootCmd(nil).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
