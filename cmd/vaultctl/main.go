/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command vaultctl is a thin operator CLI over vaultd's seal-management
// HTTP routes: check seal status, submit a key share, seal the vault, or
// generate key shares. It has no command for rotation or lease sweeps.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("vaultctl", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "vaultd API address")
	token := fs.String("token", "", "bearer token for mutating commands")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return fmt.Errorf("usage: vaultctl [-addr URL] [-token TOKEN] <status|unseal|seal|init> [args...]")
	}

	c := &client{addr: *addr, token: *token, httpc: &http.Client{Timeout: 10 * time.Second}}

	switch cmd := rest[0]; cmd {
	case "status":
		return c.status()
	case "unseal":
		if len(rest) < 2 {
			return fmt.Errorf("usage: vaultctl unseal <share>")
		}
		return c.unseal(rest[1])
	case "seal":
		return c.seal()
	case "init":
		return c.initShares()
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// client is a minimal HTTP wrapper around vaultd's seal-management routes,
// the only ones an operator needs before the vault can serve anything else.
type client struct {
	addr  string
	token string
	httpc *http.Client
}

func (c *client) do(method, path string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, c.addr+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("calling vaultd: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return data, resp.StatusCode, nil
}

func (c *client) status() error {
	data, status, err := c.do(http.MethodGet, "/api/v1/seal/status", nil)
	if err != nil {
		return err
	}
	return printResult(status, data)
}

func (c *client) unseal(share string) error {
	data, status, err := c.do(http.MethodPost, "/api/v1/seal/unseal", map[string]string{"share": share})
	if err != nil {
		return err
	}
	return printResult(status, data)
}

func (c *client) seal() error {
	data, status, err := c.do(http.MethodPost, "/api/v1/seal/seal", nil)
	if err != nil {
		return err
	}
	return printResult(status, data)
}

func (c *client) initShares() error {
	data, status, err := c.do(http.MethodPost, "/api/v1/seal/init", nil)
	if err != nil {
		return err
	}
	return printResult(status, data)
}

func printResult(status int, data []byte) error {
	fmt.Fprintf(os.Stdout, "%d %s\n", status, data)
	if status >= 400 {
		return fmt.Errorf("vaultd returned status %d", status)
	}
	return nil
}
