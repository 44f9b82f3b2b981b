// Command mtrctl runs operator tasks against the render queue and renders
// snapshot files locally.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mtr-industry/mtr-backoffice/cmd/mtrctl/cli"
	"github.com/mtr-industry/mtr-backoffice/jobs"
)

const usage = `usage: mtrctl <command> [flags]

commands:
  enqueue-render -kind request|quote|complaint|order -id N [-notify]
  backfill       [-limit N]
  queue-stats    [-json]
  send-mail      -to addr [-account admin|commercial|contact] [-subject s] [-text body]
  render         -kind request|quote|complaint -in snapshot.json -out doc.pdf [-assets dir] [-branding file]
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return "127.0.0.1:6379"
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	cmd, args := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)

	switch cmd {
	case "enqueue-render":
		kind := fs.String("kind", "", "document kind")
		id := fs.Int64("id", 0, "record id")
		notify := fs.Bool("notify", false, "send the notification email after rendering")
		if err := fs.Parse(args); err != nil {
			return 2
		}
		if *id <= 0 {
			fmt.Fprintln(stderr, "enqueue-render: -id is required")
			return 2
		}
		jc := cli.NewJobsCLI(redisAddr())
		defer jc.Close()
		return jc.EnqueueCommand(ctx, cli.EnqueueOptions{Kind: *kind, ID: *id, Notify: *notify, Stdout: stdout, Stderr: stderr})

	case "backfill":
		limit := fs.Int("limit", 200, "maximum records per document kind")
		if err := fs.Parse(args); err != nil {
			return 2
		}
		jc := cli.NewJobsCLI(redisAddr())
		defer jc.Close()
		return jc.BackfillCommand(ctx, *limit, stdout, stderr)

	case "queue-stats":
		asJSON := fs.Bool("json", false, "print JSON")
		if err := fs.Parse(args); err != nil {
			return 2
		}
		jc := cli.NewJobsCLI(redisAddr())
		defer jc.Close()
		return jc.StatsCommand(*asJSON, stdout, stderr)

	case "send-mail":
		var payload jobs.SendMailPayload
		fs.StringVar(&payload.Account, "account", "contact", "sending mailbox")
		fs.StringVar(&payload.To, "to", "", "recipient")
		fs.StringVar(&payload.Subject, "subject", "Test MTR", "subject")
		fs.StringVar(&payload.Text, "text", "Message de test envoyé depuis mtrctl.", "plain-text body")
		if err := fs.Parse(args); err != nil {
			return 2
		}
		jc := cli.NewJobsCLI(redisAddr())
		defer jc.Close()
		return jc.MailCommand(ctx, payload, stdout, stderr)

	case "render":
		opts := cli.RenderOptions{Stdout: stdout, Stderr: stderr}
		fs.StringVar(&opts.Kind, "kind", "", "request, quote or complaint")
		fs.StringVar(&opts.In, "in", "", "snapshot JSON file")
		fs.StringVar(&opts.Out, "out", "document.pdf", "output PDF file")
		fs.StringVar(&opts.AssetRoot, "assets", ".", "directory holding assets/")
		fs.StringVar(&opts.Branding, "branding", "", "branding YAML file")
		if err := fs.Parse(args); err != nil {
			return 2
		}
		if opts.In == "" {
			fmt.Fprintln(stderr, "render: -in is required")
			return 2
		}
		return cli.RenderCommand(ctx, opts)
	}

	fmt.Fprintf(stderr, "unknown command %q\n%s", cmd, usage)
	return 2
}
