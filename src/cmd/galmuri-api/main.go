package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"galmuri-capture/src/api"
	"galmuri-capture/src/config"
	"galmuri-capture/src/logutil"
)

const (
	maxFileSizeMB = 10
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

type cliOptions struct {
	apiKeyPath string
	baseURL    string
	userID     string
	verbose    bool
	timeout    time.Duration

	// capture
	filePath string
	title    string
	memo     string
	source   string
}

func main() {
	if err := runWithArgs(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"galmuri-api"}
	}
	opts := &cliOptions{}
	cmd := newRootCmd(opts, os.Stdout, os.Stdin)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions, out io.Writer, in io.Reader) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "galmuri-api",
		Short:         "Talk to the Galmuri Diary backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")
	cmd.PersistentFlags().StringVar(&opts.baseURL, "url", "", "Backend base URL (overrides GALMURI_API_URL)")
	cmd.PersistentFlags().StringVar(&opts.userID, "user", "", "User id (overrides GALMURI_USER_ID)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout")

	withClient := func(fn func(ctx context.Context, c *api.Client, cfg *config.Config, args []string) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			c, cfg, err := clientFor(*opts)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
			defer cancel()
			res, err := fn(ctx, c, cfg, args)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
	}

	health := &cobra.Command{
		Use:   "health",
		Short: "Check the backend is up",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, c *api.Client, _ *config.Config, _ []string) (any, error) {
			return c.Health(ctx)
		}),
	}

	capture := &cobra.Command{
		Use:   "capture",
		Short: "Upload a PNG as a capture",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, c *api.Client, cfg *config.Config, _ []string) (any, error) {
			data, err := readImage(opts.filePath, in)
			if err != nil {
				return nil, err
			}
			platform, err := api.ParsePlatform(cfg.Platform)
			if err != nil {
				return nil, err
			}
			req := api.CaptureRequest{
				UserID:      cfg.UserID,
				ImageData:   base64.StdEncoding.EncodeToString(data),
				PageTitle:   opts.title,
				MemoContent: opts.memo,
				Platform:    platform,
			}
			if opts.source != "" {
				req.SourceURL = &opts.source
			}
			return c.Capture(ctx, req)
		}),
	}
	capture.Flags().StringVar(&opts.filePath, "file", "", "Path to PNG file (use '-' for stdin)")
	capture.Flags().StringVar(&opts.title, "title", "CLI capture", "Page title")
	capture.Flags().StringVar(&opts.memo, "memo", "", "Memo content")
	capture.Flags().StringVar(&opts.source, "source-url", "", "Source URL")
	_ = capture.MarkFlagRequired("file")

	items := &cobra.Command{
		Use:   "items",
		Short: "List all captures of the user",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, c *api.Client, cfg *config.Config, _ []string) (any, error) {
			return c.Items(ctx, cfg.UserID)
		}),
	}

	unsynced := &cobra.Command{
		Use:   "unsynced",
		Short: "List captures not yet synced",
		Args:  cobra.NoArgs,
		RunE: withClient(func(ctx context.Context, c *api.Client, cfg *config.Config, _ []string) (any, error) {
			return c.Unsynced(ctx, cfg.UserID)
		}),
	}

	search := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search OCR text and memos",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, c *api.Client, cfg *config.Config, args []string) (any, error) {
			return c.Search(ctx, cfg.UserID, args[0])
		}),
	}

	item := &cobra.Command{
		Use:   "item ID",
		Short: "Fetch one capture",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, c *api.Client, _ *config.Config, args []string) (any, error) {
			return c.Item(ctx, args[0])
		}),
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete one capture",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(ctx context.Context, c *api.Client, _ *config.Config, args []string) (any, error) {
			return c.Delete(ctx, args[0])
		}),
	}

	cmd.AddCommand(health, capture, items, unsynced, search, item, del)
	return cmd
}

func clientFor(opts cliOptions) (*api.Client, *config.Config, error) {
	// Configure logging BEFORE any other operations.
	if !opts.verbose {
		log.SetOutput(io.Discard)
	} else {
		log.SetOutput(os.Stderr)
	}

	cfg, err := config.LoadWithOptions(config.LoadOptions{APIKeyPathOverride: opts.apiKeyPath})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.baseURL != "" {
		cfg.APIURL = opts.baseURL
	}
	if opts.userID != "" {
		cfg.UserID = opts.userID
	}
	if opts.verbose {
		fmt.Fprintf(os.Stderr, "[verbose] API %s, key %s\n", cfg.APIURL, logutil.RedactKey(cfg.APIKey))
	}
	return api.New(api.Options{BaseURL: cfg.APIURL, APIKey: cfg.APIKey}), cfg, nil
}

func readImage(path string, stdin io.Reader) ([]byte, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(io.LimitReader(stdin, maxFileSize+1))
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	if err := validatePNG(data); err != nil {
		return nil, err
	}
	return data, nil
}

var pngMagic = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

func validatePNG(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("input file is empty")
	}
	if len(data) < len(pngMagic) || !bytes.Equal(data[:len(pngMagic)], pngMagic) {
		return fmt.Errorf("input is not a valid PNG file (invalid magic number)")
	}
	return nil
}
