package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"machinerun.io/diskprov"
	"machinerun.io/diskprov/linux"
	"machinerun.io/diskprov/mockos"
)

var version string

func printTextTable(data [][]string) {
	var lengths = make([]int, len(data[0]))

	for _, line := range data {
		for i, field := range line {
			if len(field) > lengths[i] {
				lengths[i] = len(field)
			}
		}
	}

	fmts := make([]string, len(lengths))

	for i, l := range lengths {
		fmts[i] = fmt.Sprintf("%%-%ds", l)
	}

	pfmt := strings.Join(fmts, " | ") + " |\n"

	for _, line := range data {
		s := make([]interface{}, len(line))
		for i, v := range line {
			s[i] = v
		}

		fmt.Printf(pfmt, s...)
	}
}

// loadConfig reads --config, or the defaults when it is not given.
func loadConfig(c *cli.Context) (diskprov.Config, error) {
	if c.String("config") == "" {
		return diskprov.DefaultConfig(), nil
	}

	return diskprov.LoadConfig(c.String("config"))
}

// getRegistry builds a Registry for the host, or for the simulated host
// given with --mock.
func getRegistry(c *cli.Context) (*diskprov.Registry, diskprov.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, cfg, err
	}

	log := logrus.StandardLogger()
	log.SetLevel(cfg.Level())

	if c.Bool("debug") {
		log.SetLevel(logrus.DebugLevel)
	}

	ttl, err := cfg.LoopTTL()
	if err != nil {
		return nil, cfg, err
	}

	var exec diskprov.Executor

	if layout := c.String("mock"); layout != "" {
		exec = mockos.Executor(layout)
	} else {
		exec = linux.Executor(log)
	}

	return diskprov.NewRegistry(diskprov.Options{
		Exec:        exec,
		Tools:       cfg.Tools,
		Logger:      log,
		Loops:       linux.CachingLoopLister(diskprov.NewLoopLister(exec, cfg.Tools), ttl),
		VerifyTable: cfg.VerifyTable,
	}), cfg, nil
}

func main() {
	app := &cli.App{
		Name:    "diskprov-demo",
		Version: version,
		Usage:   "Discover, partition, format and mount disks with diskprov",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "yaml config file",
				EnvVars: []string{"DISKPROV_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log every command that is run",
			},
			&cli.StringFlag{
				Name:  "mock",
				Usage: "run against the simulated host in this json layout",
			},
		},
		Commands: []*cli.Command{
			&diskCommands,
			&partCommands,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
