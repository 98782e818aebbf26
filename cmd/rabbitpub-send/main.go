package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	rabbitpub "github.com/glimte/rabbitpub-go"
)

var version = "dev"

// fileConfig is the optional YAML config file shape.
type fileConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	VHost      string `yaml:"vhost"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

func main() {
	var (
		configFile string
		host       string
		port       int
		username   string
		password   string
		vhost      string
		exchange   string
		routingKey string
		mandatory  bool
		timeout    time.Duration
	)

	rootCmd := &cobra.Command{
		Use:   "rabbitpub-send [message]",
		Short: "Publish a message through the resilient RabbitMQ client",
		Long: `rabbitpub-send publishes a single durable message to an exchange.
The message body is taken from the argument, or from stdin when no
argument is given. Status events are printed as they arrive.`,
		Version: version,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				cfg, err := loadConfig(configFile)
				if err != nil {
					return err
				}
				applyConfig(cmd, cfg, &host, &port, &username, &password, &vhost, &exchange, &routingKey)
			}

			body, err := messageBody(args)
			if err != nil {
				return err
			}

			client := rabbitpub.NewClient(
				rabbitpub.WithHost(host),
				rabbitpub.WithPort(port),
				rabbitpub.WithCredentials(username, password),
				rabbitpub.WithVHost(vhost),
			)
			defer client.Close()

			client.OnStatusChanged(func(text string) {
				fmt.Fprintln(os.Stderr, "status:", text)
			})

			select {
			case err := <-client.Ready():
				if err != nil {
					return fmt.Errorf("broker not reachable: %w", err)
				}
			case <-time.After(timeout):
				return fmt.Errorf("timed out after %s waiting for connection", timeout)
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			var opts []rabbitpub.SendOption
			if mandatory {
				opts = append(opts, rabbitpub.WithMandatory())
			}
			if err := client.Send(ctx, exchange, routingKey, body, opts...); err != nil {
				return fmt.Errorf("send failed: %w", err)
			}

			fmt.Printf("published %d bytes to %s/%s\n", len(body), exchange, routingKey)
			return nil
		},
	}

	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "YAML config file")
	rootCmd.Flags().StringVar(&host, "host", "localhost", "RabbitMQ host")
	rootCmd.Flags().IntVar(&port, "port", 5672, "RabbitMQ port")
	rootCmd.Flags().StringVar(&username, "username", "guest", "RabbitMQ username")
	rootCmd.Flags().StringVar(&password, "password", "guest", "RabbitMQ password")
	rootCmd.Flags().StringVar(&vhost, "vhost", "/", "RabbitMQ virtual host")
	rootCmd.Flags().StringVarP(&exchange, "exchange", "e", "", "target exchange")
	rootCmd.Flags().StringVarP(&routingKey, "key", "k", "", "routing key")
	rootCmd.Flags().BoolVarP(&mandatory, "mandatory", "m", false, "report the message back if unroutable")
	rootCmd.Flags().DurationVarP(&timeout, "timeout", "t", 10*time.Second, "connection and send timeout")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := &fileConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// applyConfig fills in file values for flags the user did not set.
func applyConfig(cmd *cobra.Command, cfg *fileConfig, host *string, port *int, username, password, vhost, exchange, routingKey *string) {
	if cfg.Host != "" && !cmd.Flags().Changed("host") {
		*host = cfg.Host
	}
	if cfg.Port != 0 && !cmd.Flags().Changed("port") {
		*port = cfg.Port
	}
	if cfg.Username != "" && !cmd.Flags().Changed("username") {
		*username = cfg.Username
	}
	if cfg.Password != "" && !cmd.Flags().Changed("password") {
		*password = cfg.Password
	}
	if cfg.VHost != "" && !cmd.Flags().Changed("vhost") {
		*vhost = cfg.VHost
	}
	if cfg.Exchange != "" && !cmd.Flags().Changed("exchange") {
		*exchange = cfg.Exchange
	}
	if cfg.RoutingKey != "" && !cmd.Flags().Changed("key") {
		*routingKey = cfg.RoutingKey
	}
}

func messageBody(args []string) ([]byte, error) {
	if len(args) == 1 {
		return []byte(args[0]), nil
	}
	body, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("failed to read message from stdin: %w", err)
	}
	return body, nil
}
