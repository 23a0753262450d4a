package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	cli "gopkg.in/urfave/cli.v2"
)

const (
	DATABASE = `database`
)

func init() {
	log.SetLevel(log.InfoLevel)
	log.SetOutput(os.Stdout)
}

func main() {
	app := &cli.App{
		Name: "crashpad-cli: command line utils for the crash report database",
		Commands: []*cli.Command{
			ListCommand(),
			RemoveCommand(),
		},
	}
	app.Run(os.Args)
}
