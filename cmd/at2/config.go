package main

import (
	"bytes"
	"net"
	"os"

	"github.com/advanderveer/at2/ledger/agreement/broadcast"
	"github.com/advanderveer/at2/ledger/node"
	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	configTransport string
	configStorage   string
	configDataDir   string
	configOut       string
)

func init() {
	configNewCmd.Flags().StringVar(&configTransport, "transport", node.TransportTCP, "broadcast transport: tcp, h2 or memory")
	configNewCmd.Flags().StringVar(&configStorage, "storage", node.StorageBadger, "storage engine: badger, bolt or memory")
	configNewCmd.Flags().StringVar(&configDataDir, "data-dir", node.DefaultConf().DataDir, "directory for durable storage")
	configNewCmd.Flags().StringVarP(&configOut, "out", "o", "", "write the config to this file instead of stdout")

	configCmd.AddCommand(configNewCmd)
	configCmd.AddCommand(configGetNodeCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate and inspect node configs",
}

var configNewCmd = &cobra.Command{
	Use:   "new <node-address> <rpc-address>",
	Short: "Generate a new node config",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		c := node.DefaultConf()
		c.Address, c.RPCAddress = args[0], args[1]
		c.Transport, c.Storage, c.DataDir = configTransport, configStorage, configDataDir

		if c.Transport == node.TransportHTTP2 {
			var ip net.IP
			if host, _, err := net.SplitHostPort(c.Address); err == nil {
				ip = net.ParseIP(host)
			}

			cert, key, err := broadcast.CreateCertificates(ip)
			if err != nil {
				return errors.Wrap(err, "failed to create certificate")
			}

			c.Certificate, c.Key = string(cert), string(key)
		}

		buf := bytes.NewBuffer(nil)
		err = c.Encode(buf)
		if err != nil {
			return err
		}

		if configOut == "" {
			_, err = buf.WriteTo(cmd.OutOrStdout())
			return err
		}

		err = atomic.WriteFile(configOut, buf)
		if err != nil {
			return errors.Wrapf(err, "failed to write config to '%s'", configOut)
		}

		return nil
	},
}

var configGetNodeCmd = &cobra.Command{
	Use:   "get-node",
	Short: "Read a config on stdin and print its entry for other nodes' 'nodes' list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		c, err := node.DecodeConf(cmd.InOrStdin())
		if err != nil {
			return err
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		err = enc.Encode([]node.Entry{c.Entry()})
		if err != nil {
			return errors.Wrap(err, "failed to encode node entry")
		}

		return enc.Close()
	},
}

func openConf(path string) (c *node.Conf, err error) {
	if path == "" || path == "-" {
		return node.ReadConf(os.Stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open config")
	}

	defer f.Close()
	return node.ReadConf(f)
}
