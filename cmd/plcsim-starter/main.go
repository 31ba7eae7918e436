/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Command plcsim-starter drives simulated controllers for a host process.
//
// With no positional arguments it runs as the watchdog. With
// "<device> <host-pid> <signal-dir>" it runs the session process that
// brings device up and then follows the intents written to the signal file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/srediag/plcsim-starter/internal/app"
	"github.com/srediag/plcsim-starter/internal/config"
	"github.com/srediag/plcsim-starter/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("plcsim-starter", pflag.ContinueOnError)
	flags := config.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	cfg, err := flags.Resolve()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	logger := logging.New(cfg.Logging())
	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := app.Options{Config: cfg, Logger: logger}
	switch fs.NArg() {
	case 0:
		err = app.RunWatchdog(ctx, opts)
	case 3:
		sa, perr := app.ParseSessionArgs(fs.Args())
		if perr != nil {
			fmt.Fprintln(os.Stderr, perr)
			return 2
		}
		err = app.RunSession(ctx, opts, sa)
	default:
		fmt.Fprintln(os.Stderr, app.ErrUsage)
		fs.PrintDefaults()
		return 2
	}
	if err != nil {
		logger.Error("plcsim-starter failed", "error", err)
		return 1
	}
	return 0
}
