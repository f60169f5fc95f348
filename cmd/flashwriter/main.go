// Copyright 2026 Northern.tech AS
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

// Command flashwriter streams a file into a flash device through a
// flash.Streamer, using a device-stream profile to describe the target.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const appDescription = "" +
	"flashwriter streams a file onto a flash device in aligned, " +
	"page-bounded writes, honouring the device's erase-before-write " +
	"constraints. See the 'write', 'info' and 'erase' commands below."

func main() {
	app := &cli.App{
		Name:        "flashwriter",
		Usage:       "buffered flash writer",
		Description: appDescription,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "one of: debug, info, warning, error",
				Value: "info",
			},
		},
		Before: func(c *cli.Context) error {
			level, err := log.ParseLevel(c.String("log-level"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			log.SetLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			writeCommand,
			infoCommand,
			eraseCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
