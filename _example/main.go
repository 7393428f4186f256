package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jkbrsn/httptap"
	"github.com/jkbrsn/httptap/pkg/collectors"
)

func main() {
	// Pretty-print the log collector's output to the console
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	cfg := httptap.Config{
		LogRequestBody:  true,
		LogResponseBody: true,
	}

	// Keep the last exchanges around for inspection, and log each one as it happens
	memory, err := collectors.NewMemory(cfg, 32)
	if err != nil {
		fmt.Printf("Error creating memory collector: %v\n", err)
		return
	}
	logging := collectors.NewLog(cfg)

	// Instrument a client per collector; any net/http-based code can use them
	inner := &http.Client{Timeout: 10 * time.Second}
	logged := httptap.New(logging, httptap.WithHTTPClient(inner))
	defer logged.Close()
	stored := httptap.New(memory, httptap.WithHTTPClient(inner))
	defer stored.Close()

	// A plain GET, reported start to completion
	resp, err := logged.Get("https://httpbin.org/get")
	if err != nil {
		fmt.Printf("Error sending GET: %v\n", err)
		return
	}
	resp.Body.Close()

	// A POST with a JSON body; the captured body shows up decoded in the report
	resp, err = logged.Post(
		"https://httpbin.org/post",
		"application/json",
		strings.NewReader(`{"key":"value"}`),
	)
	if err != nil {
		fmt.Printf("Error sending POST: %v\n", err)
		return
	}
	resp.Body.Close()

	// A JSON-RPC call through the memory-backed client gets a method annotation
	resp, err = stored.Post(
		"https://ethereum-rpc.publicnode.com",
		"application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"params":[],"method":"eth_chainId"}`),
	)
	if err != nil {
		fmt.Printf("Error sending RPC call: %v\n", err)
		return
	}
	resp.Body.Close()

	// Walk the retained exchanges
	for _, ex := range memory.Exchanges() {
		fmt.Printf("Exchange %s\n", ex.Handle)
		fmt.Printf("  %s %s\n", ex.Request.Method, ex.Request.URL)
		if ex.Request.RPCMethod != "" {
			fmt.Printf("  RPC method:  %s\n", ex.Request.RPCMethod)
		}
		if !ex.Done {
			fmt.Println("  No terminal report received")
			continue
		}
		if ex.Err != "" {
			fmt.Printf("  Failed: %s (timeout: %v)\n", ex.Err, ex.Timeout)
			continue
		}
		fmt.Printf("  Status:      %d\n", ex.Response.StatusCode)
		fmt.Printf("  Size:        %d bytes\n", ex.Response.BodySize)
		fmt.Printf("  Latency:     %v\n", ex.Response.Times.Latency)
		if ex.Response.RemoteAddr != nil {
			fmt.Printf("  Remote addr: %v\n", ex.Response.RemoteAddr)
		}
		if ex.Response.BodyText != nil {
			fmt.Printf("  Body:        %s\n", *ex.Response.BodyText)
		}
		fmt.Println()
	}
}
