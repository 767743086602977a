// Copyright 2016 Commonwealth of Australia, Bureau of Meteorology.
// Licensed under the Apache License, Version 2.0.

// Command rapicmon subscribes to a rapic server and fans out a summary of
// each received scan to websocket clients, for keeping an eye on a radar
// feed without storing anything.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/bom-radar/rapic"
)

// Config selects the upstream server, the filters to subscribe with and the
// local address to serve websocket clients on.
type Config struct {
	Address string `yaml:"address"`
	Service string `yaml:"service"`
	Listen  string `yaml:"listen"`
	Filters []struct {
		Station int      `yaml:"station"`
		Product string   `yaml:"product"`
		Moments []string `yaml:"moments"`
	} `yaml:"filters"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Service: "15555",
		Listen:  ":8440",
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// scanSummary is the JSON document published per received scan.
type scanSummary struct {
	Station   int    `json:"station"`
	VolumeID  int    `json:"volume_id"`
	Product   string `json:"product"`
	Pass      int    `json:"pass"`
	PassCount int    `json:"pass_count"`
	Rays      int    `json:"rays"`
	Bins      int    `json:"bins"`
	Received  string `json:"received"`
}

// hub fans messages out to the connected websocket clients.
type hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newHub() *hub {
	return &hub{conns: make(map[*websocket.Conn]struct{})}
}

func (h *hub) add(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
	c.Close()
}

func (h *hub) publish(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			delete(h.conns, c)
			c.Close()
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func serveWS(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.add(c)
		// drain control frames until the peer goes away
		go func() {
			defer h.remove(c)
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

// handleMessages dequeues everything currently framed, publishing a summary
// per scan.
func handleMessages(con *rapic.Client, h *hub) error {
	for {
		mt, ok, err := con.Dequeue()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		switch mt {
		case rapic.MessageMssg:
			var msg rapic.Mssg
			if err := con.Decode(&msg); err != nil {
				log.Print(rapic.FormatError(err))
				continue
			}
			log.Printf("MSSG %d: %s", msg.Number, msg.Text)

		case rapic.MessageScan:
			var scan rapic.Scan
			if err := con.Decode(&scan); err != nil {
				// decode errors do not stall the stream; log and move on
				log.Print(rapic.FormatError(err))
				continue
			}
			h.publish(scanSummary{
				Station:   scan.StationID(),
				VolumeID:  scan.VolumeID(),
				Product:   scan.Product(),
				Pass:      scan.Pass(),
				PassCount: scan.PassCount(),
				Rays:      len(scan.RayHeaders()),
				Bins:      scan.Bins(),
				Received:  time.Now().UTC().Format(time.RFC3339),
			})
		}
	}
}

// receive runs the synchronous client loop, reconnecting is left to the
// supervisor that restarts the process.
func receive(ctx context.Context, cfg *Config, h *hub) error {
	con := rapic.NewClient(rapic.DefaultMaxBufferSize, rapic.DefaultKeepalivePeriod)
	for _, f := range cfg.Filters {
		if err := con.AddFilter(f.Station, f.Product, f.Moments...); err != nil {
			return err
		}
	}
	if len(cfg.Filters) == 0 {
		if err := con.AddFilter(-1, "ANY"); err != nil {
			return err
		}
	}

	if err := con.Connect(cfg.Address, cfg.Service); err != nil {
		return err
	}
	defer con.Disconnect()

	for con.Connected() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := con.Poll(time.Second); err != nil {
			return err
		}

		for {
			more, err := con.ProcessTraffic()
			if err != nil {
				return err
			}
			if err := handleMessages(con, h); err != nil {
				return err
			}
			if !more {
				break
			}
		}
	}
	return fmt.Errorf("connection to %s:%s closed by peer", cfg.Address, cfg.Service)
}

var configPath string

var rootCmd = &cobra.Command{
	Use:           "rapicmon",
	Short:         "Live rapic feed monitor with websocket fanout",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if cfg.Address == "" {
			return fmt.Errorf("config %s names no server address", configPath)
		}

		h := newHub()
		mux := http.NewServeMux()
		mux.Handle("/ws", serveWS(h))
		srv := &http.Server{Addr: cfg.Listen, Handler: mux}

		g, ctx := errgroup.WithContext(context.Background())
		g.Go(func() error {
			return receive(ctx, cfg, h)
		})
		g.Go(func() error {
			return srv.ListenAndServe()
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Shutdown(context.Background())
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "rapicmon.yaml", "path to configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, rapic.FormatError(err))
		os.Exit(1)
	}
}
