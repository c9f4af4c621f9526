// Copyright 2025 Tao Wang <wangtaoking1@qq.com>. All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/wangtaoking1/msgnet/app"
	"github.com/wangtaoking1/msgnet/errors"
	"github.com/wangtaoking1/msgnet/flag"
	"github.com/wangtaoking1/msgnet/server"
	"github.com/wangtaoking1/msgnet/tcp"
)

type workersOptions struct {
	Server  string
	Timeout time.Duration
	Output  string
}

func (o *workersOptions) Flags() (fss flag.NamedFlagSets) {
	fs := fss.FlagSet("workers")
	fs.StringVar(&o.Server, "server", o.Server, "Base url of the msgnetd admin api.")
	fs.DurationVar(&o.Timeout, "timeout", o.Timeout, "Timeout of the request.")
	fs.StringVarP(&o.Output, "output", "o", o.Output, "Output format, table or json.")

	return fss
}

func (o *workersOptions) Validate() []error {
	var errs []error
	if !strings.HasPrefix(o.Server, "http://") && !strings.HasPrefix(o.Server, "https://") {
		errs = append(errs, fmt.Errorf("--server %q must be an http or https url", o.Server))
	}
	if o.Output != "table" && o.Output != "json" {
		errs = append(errs, fmt.Errorf("--output %q must be table or json", o.Output))
	}

	return errs
}

func newWorkersCommand() *app.Command {
	opts := &workersOptions{
		Server:  "http://127.0.0.1:8080",
		Timeout: 5 * time.Second,
		Output:  "table",
	}

	return app.NewCommand("workers", "List the peers connected to a msgnetd",
		app.WithCmdOptions(opts),
		app.WithCmdRunFunc(func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
			defer cancel()

			workers, err := fetchWorkers(ctx, opts.Server)
			if err != nil {
				return err
			}
			if opts.Output == "json" {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(workers)
			}
			printWorkers(os.Stdout, workers)

			return nil
		}),
	)
}

// fetchWorkers reads the listing of every transport from the admin api.
// Websocket peers are listed with the same fields as tcp workers.
func fetchWorkers(ctx context.Context, base string) (map[string][]tcp.WorkerInfo, error) {
	url := strings.TrimRight(base, "/") + server.WorkersPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("get %s: %s", url, resp.Status)
	}
	var workers map[string][]tcp.WorkerInfo
	if err := json.NewDecoder(resp.Body).Decode(&workers); err != nil {
		return nil, errors.Wrap(err, "decode workers")
	}

	return workers, nil
}

func printWorkers(w io.Writer, workers map[string][]tcp.WorkerInfo) {
	table := uitable.New()
	table.MaxColWidth = 60
	table.AddRow("TRANSPORT", "ID", "REMOTE", "STATE", "TLS", "AGE")

	transports := maps.Keys(workers)
	slices.Sort(transports)
	for _, transport := range transports {
		for _, info := range workers[transport] {
			table.AddRow(transport, info.ID, info.RemoteAddr, info.State, info.TLS,
				time.Since(info.Since).Round(time.Second))
		}
	}

	fmt.Fprintln(w, table)
}
