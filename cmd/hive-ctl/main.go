// Command hive-ctl is a demonstration client for the broker: one-shot
// publish/consume subcommands plus an interactive shell built on
// cli/shell, exercising the wire protocol end-to-end the way a developer
// poking at a running broker would.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"go.bryk.io/hive/cli"
	"go.bryk.io/hive/cli/shell"
	"go.bryk.io/hive/internal/wire"
	"go.bryk.io/hive/model"
)

// withSpinner shows a progress indicator for the duration of a one-shot
// round trip to the broker, since a TCP connect plus a single request/
// response pair can briefly stall on a slow network.
func withSpinner(action func() error) error {
	sp := cli.NewSpinner()
	sp.Start()
	defer sp.Stop()
	return action()
}

var addr string

func main() {
	root := &cobra.Command{Use: "hive-ctl", Short: "Interact with a running hive-broker instance"}
	root.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:5671", "broker TCP address")

	root.AddCommand(declareExchangeCmd())
	root.AddCommand(declareQueueCmd())
	root.AddCommand(bindCmd())
	root.AddCommand(publishCmd())
	root.AddCommand(consumeCmd())
	root.AddCommand(shellCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func exchangeType(name string) (model.ExchangeType, error) {
	switch strings.ToLower(name) {
	case "direct":
		return model.ExchangeDirect, nil
	case "fanout":
		return model.ExchangeFanout, nil
	case "topic":
		return model.ExchangeTopic, nil
	default:
		return model.ExchangeUnknown, fmt.Errorf("unknown exchange type %q, want direct|fanout|topic", name)
	}
}

func declareExchangeCmd() *cobra.Command {
	var kind string
	var durable bool
	cmd := &cobra.Command{
		Use:   "declare-exchange <name>",
		Short: "Declare an exchange",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			t, err := exchangeType(kind)
			if err != nil {
				return err
			}
			return withSpinner(func() error {
				c, err := dial(addr)
				if err != nil {
					return err
				}
				defer func() { _ = c.Close() }()
				if _, err := c.openChannel("ctl"); err != nil {
					return err
				}
				resp, err := c.declareExchange("ctl", args[0], t, durable, false)
				if err != nil {
					return err
				}
				return reportOK(resp, "declare exchange")
			})
		},
	}
	cmd.Flags().StringVar(&kind, "type", "direct", "exchange type: direct|fanout|topic")
	cmd.Flags().BoolVar(&durable, "durable", false, "persist the exchange across restarts")
	return cmd
}

func declareQueueCmd() *cobra.Command {
	var durable bool
	cmd := &cobra.Command{
		Use:   "declare-queue <name>",
		Short: "Declare a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withSpinner(func() error {
				c, err := dial(addr)
				if err != nil {
					return err
				}
				defer func() { _ = c.Close() }()
				if _, err := c.openChannel("ctl"); err != nil {
					return err
				}
				resp, err := c.declareQueue("ctl", args[0], durable, false, false)
				if err != nil {
					return err
				}
				return reportOK(resp, "declare queue")
			})
		},
	}
	cmd.Flags().BoolVar(&durable, "durable", false, "persist the queue and its messages across restarts")
	return cmd
}

func bindCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "bind <exchange> <queue>",
		Short: "Bind a queue to an exchange with a binding key",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return withSpinner(func() error {
				c, err := dial(addr)
				if err != nil {
					return err
				}
				defer func() { _ = c.Close() }()
				if _, err := c.openChannel("ctl"); err != nil {
					return err
				}
				resp, err := c.bind("ctl", args[0], args[1], key)
				if err != nil {
					return err
				}
				return reportOK(resp, "bind")
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "binding key")
	return cmd
}

func publishCmd() *cobra.Command {
	var routingKey string
	var durable bool
	cmd := &cobra.Command{
		Use:   "publish <exchange> <body>",
		Short: "Publish a message to an exchange",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return withSpinner(func() error {
				c, err := dial(addr)
				if err != nil {
					return err
				}
				defer func() { _ = c.Close() }()
				if _, err := c.openChannel("ctl"); err != nil {
					return err
				}
				resp, err := c.publish("ctl", args[0], routingKey, durable, []byte(args[1]))
				if err != nil {
					return err
				}
				return reportOK(resp, "publish")
			})
		},
	}
	cmd.Flags().StringVar(&routingKey, "routing-key", "", "message routing key")
	cmd.Flags().BoolVar(&durable, "durable", false, "request durable delivery")
	return cmd
}

func consumeCmd() *cobra.Command {
	var tag string
	var autoAck bool
	var count int
	cmd := &cobra.Command{
		Use:   "consume <queue>",
		Short: "Subscribe to a queue and print delivered messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c, err := dial(addr)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			received := make(chan struct{}, 1)
			delivered := 0
			c.onMessage(func(msgID, routingKey string, body []byte) {
				fmt.Printf("[%s] routing-key=%s body=%s\n", msgID, routingKey, body)
				if !autoAck {
					_, _ = c.ack("ctl", args[0], msgID)
				}
				delivered++
				if count > 0 && delivered >= count {
					received <- struct{}{}
				}
			})

			if _, err := c.openChannel("ctl"); err != nil {
				return err
			}
			resp, err := c.consume("ctl", args[0], tag, autoAck)
			if err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("consume rejected")
			}
			fmt.Printf("consuming from %s as %s (ctrl-c to stop)\n", args[0], tag)
			if count > 0 {
				<-received
				return nil
			}
			select {}
		},
	}
	cmd.Flags().StringVar(&tag, "tag", "ctl-consumer", "consumer tag")
	cmd.Flags().BoolVar(&autoAck, "auto-ack", true, "acknowledge messages automatically")
	cmd.Flags().IntVar(&count, "count", 0, "stop after receiving this many messages (0 = unbounded)")
	return cmd
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive session against the broker",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runShell(addr)
		},
	}
}

func runShell(addr string) error {
	c, err := dial(addr)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	c.onMessage(func(msgID, routingKey string, body []byte) {
		fmt.Printf("\n<< [%s] routing-key=%s body=%s\n", msgID, routingKey, body)
	})
	if _, err := c.openChannel("shell"); err != nil {
		return err
	}

	sh, err := shell.New(
		shell.WithPrompt(fmt.Sprintf("hive-ctl(%s)> ", addr)),
		shell.WithStartMessage("connected to "+addr),
		shell.WithExitMessage("bye"),
	)
	if err != nil {
		return err
	}

	sh.AddCommand(&shell.Command{
		Name:        "declare-exchange",
		Description: "declare-exchange <name> <direct|fanout|topic> [durable]",
		Run: func(arg string) string {
			fields := strings.Fields(arg)
			if len(fields) < 2 {
				return "usage: declare-exchange <name> <direct|fanout|topic> [durable]"
			}
			t, err := exchangeType(fields[1])
			if err != nil {
				return err.Error()
			}
			durable := len(fields) > 2 && fields[2] == "durable"
			resp, err := c.declareExchange("shell", fields[0], t, durable, false)
			return shellResult(resp, err)
		},
	})
	sh.AddCommand(&shell.Command{
		Name:        "declare-queue",
		Description: "declare-queue <name> [durable]",
		Run: func(arg string) string {
			fields := strings.Fields(arg)
			if len(fields) < 1 {
				return "usage: declare-queue <name> [durable]"
			}
			durable := len(fields) > 1 && fields[1] == "durable"
			resp, err := c.declareQueue("shell", fields[0], durable, false, false)
			return shellResult(resp, err)
		},
	})
	sh.AddCommand(&shell.Command{
		Name:        "bind",
		Description: "bind <exchange> <queue> <key>",
		Run: func(arg string) string {
			fields := strings.Fields(arg)
			if len(fields) < 3 {
				return "usage: bind <exchange> <queue> <key>"
			}
			resp, err := c.bind("shell", fields[0], fields[1], fields[2])
			return shellResult(resp, err)
		},
	})
	sh.AddCommand(&shell.Command{
		Name:        "publish",
		Description: "publish <exchange> <routing-key> <body...>",
		Run: func(arg string) string {
			fields := strings.SplitN(arg, " ", 3)
			if len(fields) < 3 {
				return "usage: publish <exchange> <routing-key> <body...>"
			}
			resp, err := c.publish("shell", fields[0], fields[1], false, []byte(fields[2]))
			return shellResult(resp, err)
		},
	})
	sh.AddCommand(&shell.Command{
		Name:        "consume",
		Description: "consume <queue> [tag]",
		Run: func(arg string) string {
			fields := strings.Fields(arg)
			if len(fields) < 1 {
				return "usage: consume <queue> [tag]"
			}
			tag := "shell-consumer"
			if len(fields) > 1 {
				tag = fields[1]
			}
			resp, err := c.consume("shell", fields[0], tag, true)
			return shellResult(resp, err)
		},
	})
	sh.AddCommand(&shell.Command{
		Name:        "ack",
		Description: "ack <queue> <message-id>",
		Run: func(arg string) string {
			fields := strings.Fields(arg)
			if len(fields) < 2 {
				return "usage: ack <queue> <message-id>"
			}
			resp, err := c.ack("shell", fields[0], fields[1])
			return shellResult(resp, err)
		},
	})

	sh.Start()
	return nil
}

func shellResult(resp wire.BasicResponse, err error) string {
	if err != nil {
		return err.Error()
	}
	if !resp.OK {
		return "rejected"
	}
	return "ok"
}

func reportOK(resp wire.BasicResponse, action string) error {
	if !resp.OK {
		return fmt.Errorf("%s rejected by broker", action)
	}
	fmt.Println(action + ": ok")
	return nil
}
