package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"gitlab.com/silenteer-oss/relay"
	"gitlab.com/silenteer-oss/relay/metaheaders"
	"gitlab.com/silenteer-oss/relay/nats"
)

func main() {
	if err := buildCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func buildCmd() *cobra.Command {
	var (
		addr    string
		subject string
		method  string
		data    string
		headers []string
		meta    bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "relay-client URL",
		Short: "Send a request to a relay server over NATS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rq := &nats.Request{
				Method:  strings.ToUpper(method),
				URL:     args[0],
				Headers: http.Header{},
			}
			for _, h := range headers {
				kv := strings.SplitN(h, ":", 2)
				if len(kv) != 2 {
					return errors.Errorf("header %q is not name:value", h)
				}
				rq.Headers.Add(strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1]))
			}
			if data != "" {
				rq.Body = []byte(data)
				if rq.Headers.Get("Content-Type") == "" {
					rq.Headers.Set("Content-Type", "application/json")
				}
			}

			client := nats.NewClient(addr, subject)
			client.Timeout = timeout
			rp, err := client.SendRequest(rq)
			if rp == nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d %s\n", rp.StatusCode, rp.Status)
			if meta {
				m, merr := metaheaders.Decode(rp.Headers)
				if merr != nil {
					return merr
				}
				text, merr := relay.ToJSON(m)
				if merr != nil {
					return merr
				}
				fmt.Fprintln(out, text)
			}
			if len(rp.Body) > 0 {
				fmt.Fprintln(out, string(rp.Body))
			}
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "nats://127.0.0.1:4222", "nats server url")
	cmd.Flags().StringVar(&subject, "subject", "relay", "subject the relay server listens on")
	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "request method")
	cmd.Flags().StringVarP(&data, "data", "d", "", "request body")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "request header as name:value")
	cmd.Flags().BoolVar(&meta, "meta", false, "print the x-image-meta headers of the reply as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "reply timeout")
	return cmd
}
