package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// call sends one request to a running server and echoes the body. Non-2xx exits 1.
func call(method, baseURL, path string, q url.Values, timeout time.Duration) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(2)
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)
	call(http.MethodGet, *baseURL, "/admin/v1/state", nil, 5*time.Second)
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)
	call(http.MethodPost, *baseURL, "/admin/v1/snapshot", nil, 10*time.Second)
}

func tierCmd(args []string) {
	fs := flag.NewFlagSet("tier", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	n := fs.Int("n", 0, "tier to force (required, no coins are charged)")
	_ = fs.Parse(args)
	if *n == 0 {
		fmt.Fprintln(os.Stderr, "missing -n")
		os.Exit(2)
	}
	call(http.MethodPost, *baseURL, "/admin/v1/tier", url.Values{"n": {fmt.Sprint(*n)}}, 5*time.Second)
}

func upgradeCmd(args []string) {
	fs := flag.NewFlagSet("upgrade", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)
	call(http.MethodPost, *baseURL, "/v1/shop/upgrade", nil, 5*time.Second)
}

func petCmd(args []string) {
	fs := flag.NewFlagSet("pet", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	name := fs.String("name", "", "pet name (add)")
	id := fs.String("id", "", "pet id (remove)")
	abrupt := fs.Bool("abrupt", false, "remove without releasing the pet's claim")
	_ = fs.Parse(args)

	switch fs.Arg(0) {
	case "add":
		call(http.MethodPost, *baseURL, "/admin/v1/pets", url.Values{"name": {*name}}, 5*time.Second)
	case "remove":
		if *id == "" {
			fmt.Fprintln(os.Stderr, "missing -id")
			os.Exit(2)
		}
		call(http.MethodDelete, *baseURL, "/admin/v1/pets", url.Values{"id": {*id}, "abrupt": {fmt.Sprint(*abrupt)}}, 5*time.Second)
	default:
		fmt.Fprintln(os.Stderr, "usage: admin pet [flags] add|remove")
		os.Exit(2)
	}
}
