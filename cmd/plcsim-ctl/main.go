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

// Command plcsim-ctl publishes Start and Stop intents for simulated
// controllers, launching plcsim-starter when it is not running yet.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/pflag"

	"github.com/srediag/plcsim-starter/internal/config"
	"github.com/srediag/plcsim-starter/internal/logging"
	"github.com/srediag/plcsim-starter/pkg/frontend"
)

const usage = "usage: plcsim-ctl [flags] start|stop <device> | status"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("plcsim-ctl", pflag.ContinueOnError)
	flags := config.BindFlags(fs)
	starter := fs.String("starter", defaultStarter(), "path of the plcsim-starter executable")
	hostPID := fs.Int32("host-pid", int32(os.Getppid()), "process whose exit ends the simulations")
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

	client, err := frontend.New(frontend.Options{
		SignalDir:   cfg.SignalDir,
		SignalFile:  cfg.SignalFile,
		Executable:  *starter,
		ProcessName: cfg.SelfName,
		HostPID:     *hostPID,
		Flags:       forwardedFlags(fs),
		Logger:      logging.New(cfg.Logging()),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	ctx := context.Background()
	switch {
	case fs.NArg() == 2 && fs.Arg(0) == "start":
		err = client.Start(ctx, fs.Arg(1))
	case fs.NArg() == 2 && fs.Arg(0) == "stop":
		err = client.Stop(ctx, fs.Arg(1))
	case fs.NArg() == 1 && fs.Arg(0) == "status":
		rec, rerr := client.Last()
		if rerr != nil {
			err = rerr
			break
		}
		fmt.Println(rec.String())
	default:
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// forwardedFlags repeats the shared flags the user set, so the launched
// orchestrator sees the same configuration.
func forwardedFlags(fs *pflag.FlagSet) []string {
	var out []string
	for _, name := range []string{"config", "log-level", "admin-addr", "project", "signal-dir"} {
		if f := fs.Lookup(name); f != nil && f.Changed {
			out = append(out, "--"+name, f.Value.String())
		}
	}
	return out
}

func defaultStarter() string {
	name := "plcsim-starter"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	self, err := os.Executable()
	if err != nil {
		return name
	}
	return filepath.Join(filepath.Dir(self), name)
}
