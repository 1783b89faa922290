package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"galmuri-capture/src/apperr"
	"galmuri-capture/src/config"
)

type stressOptions struct {
	n        int
	method   string
	addr     string
	deadline time.Duration
}

type counts struct {
	ok, busy, failed int32
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	return cmd.Execute()
}

func newRootCmd(opts *stressOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stress-bridge",
		Short:         "Fire concurrent bridge calls at a running resident",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.addr == "" {
				opts.addr = config.DefaultBridgeAddr
			}
			c, elapsed := fire(context.Background(), *opts)
			fmt.Fprintf(os.Stdout, "launched=%d ok=%d busy=%d err=%d elapsed=%s\n", opts.n, c.ok, c.busy, c.failed, elapsed)
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.n, "n", 50, "number of concurrent calls")
	cmd.Flags().StringVar(&opts.method, "method", "captureOnce", "bridge method to call")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "resident bridge address")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 15*time.Second, "per-call timeout")

	return cmd
}

func fire(ctx context.Context, opts stressOptions) (counts, time.Duration) {
	var wg sync.WaitGroup
	var c counts
	url := "http://" + opts.addr + "/v1/call/" + opts.method

	start := time.Now()
	for i := 0; i < opts.n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, opts.deadline)
			defer cancel()
			switch code, err := call(callCtx, url); {
			case err != nil:
				atomic.AddInt32(&c.failed, 1)
			case code == "":
				atomic.AddInt32(&c.ok, 1)
			case code == apperr.CodeBusy:
				atomic.AddInt32(&c.busy, 1)
			default:
				atomic.AddInt32(&c.failed, 1)
			}
		}()
	}
	wg.Wait()
	return c, time.Since(start)
}

// call returns the bridge error code, empty on success.
func call(ctx context.Context, url string) (apperr.Code, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var body struct {
		Error *struct {
			Code apperr.Code `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.Error != nil {
		return body.Error.Code, nil
	}
	return "", nil
}
