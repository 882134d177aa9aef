// Copyright 2024 Terminos Storage Protocol
// This file is part of the tos library.
//
// The tos library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The tos library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the tos library. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kadsys/kad"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] != "daemon" {
		fmt.Fprintln(os.Stderr, "expected 'daemon' subcommand")
		os.Exit(1)
	}

	daemonCmd := flag.NewFlagSet("daemon", flag.ExitOnError)
	listen := daemonCmd.String("listen", "0.0.0.0:9000", "address to listen on")
	idFlag := daemonCmd.String("id", "", "decimal node id, random if empty")
	bootstrapFlag := daemonCmd.String("bootstrap", "", "id,host,port;id,host,port...")
	logLevel := daemonCmd.String("log-level", "info", "zap log level")
	daemonCmd.Parse(os.Args[2:])

	log, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad --log-level: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	localAddr, err := parseAddr(*listen)
	if err != nil {
		log.Fatal("bad --listen", zap.Error(err))
	}

	cfg := kad.Config{ListenAddress: localAddr, LogLevel: *logLevel}
	if *idFlag != "" {
		cfg.LocalID, err = kad.ParseIDDecimal(*idFlag)
		if err != nil {
			log.Fatal("bad --id", zap.Error(err))
		}
	}
	cfg.Bootstrap, err = parseBootstrap(*bootstrapFlag)
	if err != nil {
		log.Fatal("bad --bootstrap", zap.Error(err))
	}
	cfg = cfg.WithDefaults()

	server := kad.NewServer(kad.Node{ID: cfg.LocalID, Addr: cfg.ListenAddress}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx, cfg.CallTimeout, cfg.Bootstrap); err != nil {
		log.Fatal("failed to start daemon", zap.Error(err))
	}
	log.Info("kadnode daemon started", zap.String("listen", *listen), zap.Stringer("id", cfg.LocalID))

	done := make(chan struct{})
	go runREPL(ctx, server, log, done)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	select {
	case <-sig:
		log.Info("received interrupt, shutting down")
	case <-done:
		log.Info("repl exited, shutting down")
	}

	if err := server.Close(); err != nil {
		log.Warn("error during shutdown", zap.Error(err))
	}
}

func runREPL(ctx context.Context, server *kad.Server, log *zap.Logger, done chan<- struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "help":
			fmt.Println("commands: info, set <id:int> <data:string>, get <id:int>, help, quit")
		case "info":
			fmt.Println("info not yet connected to routing table introspection")
		case "set":
			if len(fields) < 3 {
				fmt.Println("usage: set <id:int> <data:string>")
				continue
			}
			id, err := kad.ParseIDDecimal(fields[1])
			if err != nil {
				fmt.Println("bad id:", err)
				continue
			}
			data := strings.Join(fields[2:], " ")
			server.Set(ctx, id, []byte(data))
			fmt.Println("ok")
		case "get":
			if len(fields) != 2 {
				fmt.Println("usage: get <id:int>")
				continue
			}
			id, err := kad.ParseIDDecimal(fields[1])
			if err != nil {
				fmt.Println("bad id:", err)
				continue
			}
			v, err := server.Get(ctx, id)
			if err != nil {
				fmt.Println("not found")
				continue
			}
			fmt.Println(string(v))
		case "quit", "exit":
			return
		default:
			fmt.Printf("unknown command %q; try help\n", fields[0])
		}
	}
}

func newLogger(level string) (*zap.Logger, error) {
	var zapLevel zap.AtomicLevel
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zapLevel
	return cfg.Build()
}

func parseAddr(s string) (kad.Addr, error) {
	host, portStr, err := splitHostPort(s)
	if err != nil {
		return kad.Addr{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return kad.Addr{}, fmt.Errorf("bad port %q: %w", portStr, err)
	}
	return kad.Addr{Host: host, Port: uint16(port)}, nil
}

func splitHostPort(s string) (host, port string, err error) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return "", "", fmt.Errorf("missing port in %q", s)
	}
	return s[:i], s[i+1:], nil
}

// parseBootstrap parses "id,host,port;id,host,port..." into Nodes.
func parseBootstrap(s string) ([]kad.Node, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var nodes []kad.Node
	for _, entry := range strings.Split(s, ";") {
		parts := strings.Split(entry, ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("bad bootstrap entry %q: want id,host,port", entry)
		}
		id, err := kad.ParseIDDecimal(parts[0])
		if err != nil {
			return nil, fmt.Errorf("bad bootstrap id %q: %w", parts[0], err)
		}
		port, err := strconv.ParseUint(parts[2], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("bad bootstrap port %q: %w", parts[2], err)
		}
		nodes = append(nodes, kad.Node{ID: id, Addr: kad.Addr{Host: parts[1], Port: uint16(port)}})
	}
	return nodes, nil
}
