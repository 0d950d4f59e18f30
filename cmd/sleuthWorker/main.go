package main

import (
	"fmt"
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/int-code/git-sleuth/internal/application"
)

var appVersion = "v0.0.0"

func main() {
	if err := application.New("git_sleuth_worker", appVersion).RunWorker(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
