package main

import (
	"bufio"
	"fmt"
	stdlog "log"
	"os"
	"strings"

	satocash "github.com/electricdreams/satocash-go"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
)

var logger = log.New("package", "satocash/cmd")

func initLogger(level string) error {
	if level == "" {
		level = "info"
	}

	lvl, err := log.LvlFromString(strings.ToLower(level))
	if err != nil {
		return err
	}

	handler := log.StreamHandler(os.Stderr, log.TerminalFormat(true))
	log.Root().SetHandler(log.LvlFilterHandler(lvl, handler))

	return nil
}

func main() {
	app := &cli.App{
		Name:  "satocash",
		Usage: "talk to a Satocash card through a PC/SC reader",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "conf",
				Aliases: []string{"c"},
				Usage:   "optional YAML config file",
				EnvVars: []string{"SATOCASH_CONF"},
			},
			&cli.StringFlag{
				Name:    "reader",
				Aliases: []string{"r"},
				Usage:   "name of the PC/SC reader, the first one by default",
				EnvVars: []string{"SATOCASH_READER"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   `one of "error", "warn", "info", "debug" and "trace"`,
				EnvVars: []string{"SATOCASH_LOG_LEVEL"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "bound of each card exchange",
			},
			&cli.StringFlag{
				Name:    "pin",
				Usage:   "user PIN, asked on the terminal when needed and not set",
				EnvVars: []string{"SATOCASH_PIN"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "print the applet status",
				Action: commandStatus,
			},
			{
				Name:  "balance",
				Usage: "sum the unspent proofs of a unit",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "unit", Value: "sat"},
				},
				Action: commandBalance,
			},
			{
				Name:   "mints",
				Usage:  "list the stored mints",
				Action: commandMints,
			},
			{
				Name:  "keysets",
				Usage: "export keysets by index",
				Flags: []cli.Flag{
					&cli.IntSliceFlag{Name: "index", Aliases: []string{"i"}, Required: true},
				},
				Action: commandKeysets,
			},
			{
				Name:  "proofs",
				Usage: "export proofs by index",
				Flags: []cli.Flag{
					&cli.IntSliceFlag{Name: "index", Aliases: []string{"i"}, Required: true},
				},
				Action: commandProofs,
			},
			{
				Name:   "logs",
				Usage:  "print the card operation log",
				Action: commandLogs,
			},
			{
				Name:      "label",
				Usage:     "print the card label, or set it",
				ArgsUsage: "[new label]",
				Action:    commandLabel,
			},
			{
				Name:   "authenticate",
				Usage:  "check the card PKI key with a challenge",
				Action: commandAuthenticate,
			},
		},
		Before: func(c *cli.Context) error {
			return initLogger(c.String("log-level"))
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("error executing command", "error", err)
		os.Exit(1)
	}
}

// withCard discovers the applet and runs fn. A secure channel is opened when secure is set,
// and the user PIN is verified when pin is set.
func withCard(c *cli.Context, secure bool, pin bool, fn func(*satocash.CommandSet) error) error {
	cfg, fc, err := loadConfig(c.String("conf"))
	if err != nil {
		return err
	}

	if c.IsSet("timeout") {
		cfg.Timeout = c.Duration("timeout")
	}

	if fc.LogLevel != "" && !c.IsSet("log-level") {
		if err := initLogger(fc.LogLevel); err != nil {
			return err
		}
	}

	readerName := fc.Reader
	if c.IsSet("reader") {
		readerName = c.String("reader")
	}

	cs := satocash.NewCommandSet(newPCSCTransport(readerName), cfg)

	return cs.WithSession(func(cs *satocash.CommandSet) error {
		result, err := cs.DiscoverApplets()
		if err != nil {
			return err
		}

		for _, a := range result.Attempts {
			logger.Debug("probed applet", "aid", fmt.Sprintf("%X", a.AID), "status", a.Status, "error", a.Err)
		}

		if !secure {
			return fn(cs)
		}

		if err := cs.InitSecureChannel(); err != nil {
			return err
		}

		if pin {
			p := c.String("pin")
			if p == "" {
				p = ask("PIN")
			}

			if err := cs.VerifyPIN(p, satocash.DefaultPINID); err != nil {
				return err
			}
		}

		return fn(cs)
	})
}

func ask(description string) string {
	r := bufio.NewReader(os.Stdin)
	fmt.Printf("%s: ", description)
	text, err := r.ReadString('\n')
	if err != nil {
		stdlog.Fatal(err)
	}

	return strings.TrimSpace(text)
}
