package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/VictoriaMetrics/metrics"
	"github.com/urfave/cli/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"reduction.dev/mergekv/config"
	"reduction.dev/mergekv/dkv"
	"reduction.dev/mergekv/dkv/storage"
	"reduction.dev/mergekv/logging"
	"reduction.dev/mergekv/server"
)

var printer = message.NewPrinter(language.English)

func newApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "mergekv",
		Usage:     "Read and write a log-structured key-value store",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: "mergekv.yaml",
				Usage: "path to the YAML configuration, defaults are used when it doesn't exist",
			},
			&cli.StringFlag{
				Name:  "location",
				Usage: "storage location overriding the configuration (a path, memory:// or s3://bucket/prefix)",
			},
			&cli.BoolFlag{
				Name:  "metrics",
				Usage: "print metrics in Prometheus text format after the command",
			},
		},
		After: func(ctx *cli.Context) error {
			if ctx.Bool("metrics") {
				metrics.WritePrometheus(ctx.App.Writer, false)
			}
			return nil
		},
		Commands: []*cli.Command{{
			Name:      "put",
			Usage:     "Write a value for a key, an empty value deletes the key",
			ArgsUsage: "<key> <value>",
			Action: withDB(func(ctx *cli.Context, db *dkv.DB) error {
				if ctx.NArg() != 2 {
					return errors.New("put needs a key and a value")
				}
				return db.Put([]byte(ctx.Args().Get(0)), []byte(ctx.Args().Get(1)))
			}),
		}, {
			Name:      "delete",
			Usage:     "Delete a key",
			ArgsUsage: "<key>",
			Action: withDB(func(ctx *cli.Context, db *dkv.DB) error {
				if ctx.NArg() != 1 {
					return errors.New("delete needs a key")
				}
				return db.Delete([]byte(ctx.Args().First()))
			}),
		}, {
			Name:      "get",
			Usage:     "Print the value of a key",
			ArgsUsage: "<key>",
			Action: withDB(func(ctx *cli.Context, db *dkv.DB) error {
				if ctx.NArg() != 1 {
					return errors.New("get needs a key")
				}
				v, err := db.Get([]byte(ctx.Args().First()))
				if err != nil {
					return fmt.Errorf("get %q: %w", ctx.Args().First(), err)
				}
				fmt.Fprintf(ctx.App.Writer, "%s\n", v)
				return nil
			}),
		}, {
			Name:  "scan",
			Usage: "Print the keys and values in key order",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "prefix",
					Usage: "only print keys starting with this prefix",
				},
			},
			Action: withDB(func(ctx *cli.Context, db *dkv.DB) error {
				var itErr error
				count := 0
				for k, v := range db.ScanPrefix([]byte(ctx.String("prefix")), &itErr) {
					fmt.Fprintf(ctx.App.Writer, "%s=%s\n", k, v)
					count++
				}
				if itErr != nil {
					return fmt.Errorf("scan stopped after %d rows: %w", count, itErr)
				}
				printer.Fprintf(ctx.App.ErrWriter, "%d rows\n", count)
				return nil
			}),
		}, {
			Name:      "load",
			Usage:     "Write key=value lines from a file (or - for stdin), key= deletes",
			ArgsUsage: "<file>",
			Action: withDB(func(ctx *cli.Context, db *dkv.DB) error {
				r := stdin
				if path := ctx.Args().First(); path != "-" {
					if path == "" {
						return errors.New("load needs a file")
					}
					f, err := os.Open(path)
					if err != nil {
						return err
					}
					defer f.Close()
					r = f
				}
				count, err := load(db, r)
				if err != nil {
					return err
				}
				printer.Fprintf(ctx.App.ErrWriter, "loaded %d entries\n", count)
				return nil
			}),
		}, {
			Name:  "compact",
			Usage: "Merge all tables into one sorted run",
			Action: withDB(func(ctx *cli.Context, db *dkv.DB) error {
				db.Compact()
				if err := db.WaitOnTasks(); err != nil {
					return err
				}
				fmt.Fprintf(ctx.App.ErrWriter, "tables per level: %v\n", db.TableCounts())
				return nil
			}),
		}, {
			Name:  "stats",
			Usage: "Print the memtables and tables of the database",
			Action: withDB(func(ctx *cli.Context, db *dkv.DB) error {
				fmt.Fprintln(ctx.App.Writer, db.Diagnostics())
				return nil
			}),
		}, {
			Name:  "serve",
			Usage: "Serve the database over HTTP until interrupted",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "addr",
					Value: ":8080",
					Usage: "address to listen on",
				},
			},
			Action: withDB(func(ctx *cli.Context, db *dkv.DB) error {
				l, err := net.Listen("tcp", ctx.String("addr"))
				if err != nil {
					return err
				}
				return server.New(db, slog.Default().With("component", "http")).Serve(ctx.Context, l)
			}),
		}},
	}
}

// withDB opens the configured database for an action and closes it after,
// saving any writes.
func withDB(action func(ctx *cli.Context, db *dkv.DB) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		c, err := config.Load(ctx.String("config"))
		if err != nil {
			return err
		}
		if location := ctx.String("location"); location != "" {
			c.Location = location
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("config validation error: %v", err)
		}
		level, _ := c.LogLevel()
		logger := logging.SetDefault(ctx.App.ErrWriter, level)

		fs, err := storage.NewFileSystemFromLocation(c.Location)
		if err != nil {
			return err
		}
		db, err := dkv.Open(dkv.DBOptions{
			FileSystem:                  fs,
			Logger:                      logger,
			MemTableSize:                c.MemTableSize,
			TargetFileSize:              c.TargetTableSize,
			L0TableNumCompactionTrigger: c.CompactionTrigger,
		})
		if err != nil {
			return err
		}
		return errors.Join(action(ctx, db), db.Close())
	}
}

// load writes each key=value line. Blank lines are skipped.
func load(db *dkv.DB, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	count := 0
	for line := 1; scanner.Scan(); line++ {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		key, value, ok := bytes.Cut(scanner.Bytes(), []byte("="))
		if !ok || len(key) == 0 {
			return count, fmt.Errorf("line %d: expected key=value", line)
		}
		if err := db.Put(key, value); err != nil {
			return count, fmt.Errorf("line %d: %w", line, err)
		}
		count++
	}
	return count, scanner.Err()
}
