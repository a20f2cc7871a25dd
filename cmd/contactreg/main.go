// contactreg sends one signed contact registration request and prints the
// classified response as JSON.
//
// The payload comes either from a JSONC file (--payload, "-" for stdin) or
// from the contact flags. Credentials are read from the YAML file given by
// --config and from EXTERNAL_* environment variables.
//
// Exit status: 0 accepted, 2 validation failed, 3 unauthorized, 4 conflict,
// 5 unexpected status, 1 any other error.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/vitalvas/contactsig/canonical"
	"github.com/vitalvas/contactsig/client"
	"github.com/vitalvas/contactsig/config"
	"github.com/vitalvas/contactsig/outcome"
	"github.com/vitalvas/contactsig/request"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}

		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// outcomeError carries a non-accepted outcome to the exit status.
type outcomeError struct {
	kind outcome.Kind
}

func (e outcomeError) Error() string { return "registration " + e.kind.String() }

func (e outcomeError) ExitCode() int {
	switch e.kind {
	case outcome.ValidationFailed:
		return 2
	case outcome.Unauthorized:
		return 3
	case outcome.Conflict:
		return 4
	default:
		return 5
	}
}

type options struct {
	configPath       string
	payloadPath      string
	contact          client.Contact
	randomPhone      bool
	invalidToken     bool
	invalidSignature bool
	dryRun           bool
	timeout          time.Duration
	retries          int
	backoff          time.Duration
	logFormat        string
	verbose          bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var opts options

	flagSet := pflag.NewFlagSet("contactreg", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file")
	flagSet.StringVarP(&opts.payloadPath, "payload", "p", "", `path to JSONC payload file ("-" for stdin)`)
	flagSet.StringVar(&opts.contact.Phone, "phone", "", "contact phone")
	flagSet.BoolVar(&opts.contact.OSConsent, "consent", false, "contact gave consent")
	flagSet.StringVar(&opts.contact.FirstName, "first-name", "", "contact first name")
	flagSet.StringVar(&opts.contact.LastName, "last-name", "", "contact last name")
	flagSet.StringVar(&opts.contact.Email, "email", "", "contact email")
	flagSet.StringVar(&opts.contact.Comment, "comment", "", "free-form comment")
	flagSet.BoolVar(&opts.randomPhone, "random-phone", false, "generate a unique phone and email to avoid duplicate conflicts")
	flagSet.BoolVar(&opts.invalidToken, "invalid-token", false, "send an invalid bearer token")
	flagSet.BoolVar(&opts.invalidSignature, "invalid-signature", false, "send an all-zero signature")
	flagSet.BoolVar(&opts.dryRun, "dry-run", false, "print the signed request instead of sending it")
	flagSet.DurationVar(&opts.timeout, "timeout", 0, "per-attempt timeout (overrides config)")
	flagSet.IntVar(&opts.retries, "retries", 0, "extra attempts on transport failure")
	flagSet.DurationVar(&opts.backoff, "backoff", time.Second, "wait between attempts")
	flagSet.StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log request bodies and signing payload")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}

	if flagSet.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}

	if opts.logFormat != "text" && opts.logFormat != "json" {
		return nil, fmt.Errorf("invalid --log-format %q", opts.logFormat)
	}

	return &opts, nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}

		return err
	}

	logger := newLogger(stderr, opts.logFormat, opts.verbose)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	if opts.timeout > 0 {
		cfg.Timeout = opts.timeout
	}

	if !cfg.SecretConfigured() {
		logger.Warn(config.EnvSecret + " is not set correctly; requests will fail the signature check")
	}

	payload, err := loadPayload(opts, stdin)
	if err != nil {
		return err
	}

	c, err := client.New(cfg,
		client.WithObserver(client.NewLogObserver(logger)),
		client.WithRetry(opts.retries+1, opts.backoff),
	)
	if err != nil {
		return err
	}

	overrides := request.Overrides{
		UseInvalidToken:     opts.invalidToken,
		UseInvalidSignature: opts.invalidSignature,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.dryRun {
		signed, material, err := c.Prepare(ctx, payload, overrides)
		if err != nil {
			return err
		}

		return writeJSON(stdout, dryRunReport(signed, material.Payload))
	}

	result, err := c.Register(ctx, payload, overrides)
	if err != nil {
		return err
	}

	if err := writeJSON(stdout, resultReport(result)); err != nil {
		return err
	}

	if !result.OK() {
		return outcomeError{kind: result.Kind}
	}

	return nil
}

func newLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}

	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// loadPayload reads the payload file when one is given and otherwise
// builds the payload from the contact flags.
func loadPayload(opts *options, stdin io.Reader) (*canonical.Payload, error) {
	if opts.payloadPath == "" {
		contact := opts.contact
		if opts.randomPhone {
			contact = withRandomIdentity(contact)
		}

		return contact.Payload(), nil
	}

	var (
		data []byte
		err  error
	)

	if opts.payloadPath == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(opts.payloadPath)
	}

	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}

	payload, err := canonical.ParseJSONC(data)
	if err != nil {
		return nil, fmt.Errorf("parsing payload %s: %w", opts.payloadPath, err)
	}

	if opts.randomPhone {
		identity := withRandomIdentity(client.Contact{})
		payload.Set(client.FieldPhone, identity.Phone)
		payload.Set(client.FieldEmail, identity.Email)
	}

	return payload, nil
}

// withRandomIdentity replaces phone and email with values unlikely to have
// been registered before.
func withRandomIdentity(c client.Contact) client.Contact {
	n := 1_000_000 + rand.IntN(9_000_000)
	c.Phone = fmt.Sprintf("+7900%d", n)
	c.Email = fmt.Sprintf("test%d@example.com", n)

	return c
}

type report struct {
	Outcome string              `json:"outcome,omitempty"`
	Status  int                 `json:"status,omitempty"`
	Data    any                 `json:"data,omitempty"`
	Method  string              `json:"method,omitempty"`
	URL     string              `json:"url,omitempty"`
	Headers map[string][]string `json:"headers,omitempty"`
	Body    string              `json:"body,omitempty"`
	Signed  string              `json:"signing_payload,omitempty"`
}

func resultReport(o outcome.Outcome) report {
	return report{
		Outcome: o.Kind.String(),
		Status:  o.StatusCode,
		Data:    o.Data,
	}
}

func dryRunReport(signed *request.SignedRequest, signingPayload []byte) report {
	header := signed.Header()
	token := strings.TrimPrefix(header.Get(request.HeaderAuthorization), "Bearer ")
	header.Set(request.HeaderAuthorization, "Bearer "+request.Redact(token))

	return report{
		Method:  signed.Method(),
		URL:     signed.URL(),
		Headers: header,
		Body:    string(signed.Body()),
		Signed:  string(signingPayload),
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
