// Package main is the operator CLI for the cause registry HTTP API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/R3E-Network/cause_registry/internal/httputil"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("registry-cli", flag.ContinueOnError)
	baseURL := global.String("url", envOr("REGISTRY_URL", "http://localhost:8080"), "Registry API base URL")
	token := global.String("token", os.Getenv("REGISTRY_TOKEN"), "Bearer token (default $REGISTRY_TOKEN)")
	timeout := global.Duration("timeout", 30*time.Second, "Request timeout")
	global.Usage = func() { printUsage(out) }
	if err := global.Parse(args); err != nil {
		return err
	}

	rest := global.Args()
	if len(rest) == 0 {
		printUsage(out)
		return fmt.Errorf("missing command")
	}

	c := &cli{
		client: httputil.NewClient(httputil.ClientConfig{BaseURL: *baseURL, Token: *token, Timeout: *timeout}),
		out:    out,
	}
	cmd, cmdArgs := rest[0], rest[1:]

	switch cmd {
	case "ids":
		return c.get(ctx, "/causes")
	case "get":
		id, err := argID(cmdArgs, "get <id>")
		if err != nil {
			return err
		}
		return c.get(ctx, "/causes/"+id)
	case "add":
		fs := flag.NewFlagSet("add", flag.ContinueOnError)
		file := fs.String("file", "", "JSON file with cause params")
		if err := fs.Parse(cmdArgs); err != nil {
			return err
		}
		body, err := readParams(*file)
		if err != nil {
			return err
		}
		return c.send(ctx, "POST", "/causes", body)
	case "update":
		fs := flag.NewFlagSet("update", flag.ContinueOnError)
		file := fs.String("file", "", "JSON file with cause params")
		id, err := argID(cmdArgs, "update <id> -file params.json")
		if err != nil {
			return err
		}
		if err := fs.Parse(cmdArgs[1:]); err != nil {
			return err
		}
		body, err := readParams(*file)
		if err != nil {
			return err
		}
		return c.send(ctx, "PUT", "/causes/"+id, body)
	case "donate":
		if len(cmdArgs) != 2 {
			return fmt.Errorf("usage: donate <id> <amount>")
		}
		id, err := argID(cmdArgs[:1], "donate <id> <amount>")
		if err != nil {
			return err
		}
		amount, err := strconv.ParseUint(cmdArgs[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q", cmdArgs[1])
		}
		return c.send(ctx, "POST", "/causes/"+id+"/donations", map[string]uint64{"amount": amount})
	case "owner":
		return c.get(ctx, "/owner")
	case "transfer-owner":
		if len(cmdArgs) != 1 {
			return fmt.Errorf("usage: transfer-owner <address>")
		}
		return c.send(ctx, "POST", "/owner/transfer", map[string]string{"new_owner": cmdArgs[0]})
	case "events":
		fs := flag.NewFlagSet("events", flag.ContinueOnError)
		after := fs.Uint64("after", 0, "Return events after this sequence number")
		limit := fs.Int("limit", 0, "Maximum number of events")
		if err := fs.Parse(cmdArgs); err != nil {
			return err
		}
		q := url.Values{}
		q.Set("after", strconv.FormatUint(*after, 10))
		if *limit > 0 {
			q.Set("limit", strconv.Itoa(*limit))
		}
		return c.get(ctx, "/events?"+q.Encode())
	case "balance":
		return c.get(ctx, "/gasbank/balance")
	case "help":
		printUsage(out)
		return nil
	default:
		printUsage(out)
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

type cli struct {
	client *httputil.Client
	out    io.Writer
}

func (c *cli) get(ctx context.Context, path string) error {
	var v json.RawMessage
	if err := c.client.Get(ctx, path, &v); err != nil {
		return err
	}
	return c.print(v)
}

func (c *cli) send(ctx context.Context, method, path string, body interface{}) error {
	var v json.RawMessage
	var err error
	if method == "PUT" {
		err = c.client.Put(ctx, path, body, &v)
	} else {
		err = c.client.Post(ctx, path, body, &v)
	}
	if err != nil {
		return err
	}
	if len(v) == 0 {
		_, err := fmt.Fprintln(c.out, "ok")
		return err
	}
	return c.print(v)
}

func (c *cli) print(v json.RawMessage) error {
	var pretty interface{}
	if err := json.Unmarshal(v, &pretty); err != nil {
		return err
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(pretty)
}

func argID(args []string, usage string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("usage: %s", usage)
	}
	if _, err := strconv.ParseUint(args[0], 10, 64); err != nil {
		return "", fmt.Errorf("invalid cause id %q", args[0])
	}
	return args[0], nil
}

func readParams(path string) (json.RawMessage, error) {
	if path == "" {
		return nil, fmt.Errorf("-file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read params: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s is not valid JSON", path)
	}
	return json.RawMessage(data), nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, `Cause Registry CLI

Usage:
  registry-cli [-url URL] [-token TOKEN] <command> [options]

Commands:
  ids                               List cause ids
  get <id>                          Show a cause
  add -file params.json             Register a cause (owner)
  update <id> -file params.json     Replace a cause's params (owner)
  donate <id> <amount>              Donate to a cause
  owner                             Show the registry owner
  transfer-owner <address>          Hand ownership to address (owner)
  events [-after n] [-limit n]      List registry events
  balance                           Show the caller's gas bank balance

Environment:
  REGISTRY_URL     API base URL (default http://localhost:8080)
  REGISTRY_TOKEN   Bearer token`)
}
