package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexfin/pesitd/pkg/client"
	"github.com/nexfin/pesitd/pkg/config"
)

var transferFlags struct {
	address      string
	requesterID  string
	serverID     string
	password     string
	accessType   int
	transferID   string
	recordFormat int
	recordLength int
}

func bindTransferFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&transferFlags.address, "address", "", "host:port of the remote PeSIT listener (required)")
	cmd.Flags().StringVar(&transferFlags.requesterID, "requester-id", "", "our PI_03 identity (required)")
	cmd.Flags().StringVar(&transferFlags.serverID, "server-id", "", "expected peer PI_04 identity (required)")
	cmd.Flags().StringVar(&transferFlags.password, "password", "", "PI_05 password")
	cmd.Flags().IntVar(&transferFlags.accessType, "access-type", 2, "PI_22 access type")
	cmd.Flags().IntVar(&transferFlags.recordLength, "record-length", 80, "PI_32 record length")
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("requester-id")
	_ = cmd.MarkFlagRequired("server-id")
}

func clientConfig(cliCfg *config.ClientConfig) client.Config {
	return client.Config{
		Address:         transferFlags.address,
		RequesterID:     transferFlags.requesterID,
		ServerID:        transferFlags.serverID,
		Password:        transferFlags.password,
		AccessType:      byte(transferFlags.accessType),
		ProtocolVersion: 2,
		MaxEntitySize:   8192,
		SyncEnabled:     true,
		SyncIntervalKB:  100,
		ResyncEnabled:   true,
		ReadTimeoutMS:   cliCfg.ReadTimeoutMS,
		RetryCount:      cliCfg.RetryCount,
		RetryDelayMS:    cliCfg.RetryDelayMS,
	}
}

var sendCmd = &cobra.Command{
	Use:   "send <local-path> <remote-virtual-name>",
	Short: "Send a local file to a remote PeSIT server",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(GetConfigFile())
		if err != nil {
			return err
		}
		if err := InitLogger(cfg); err != nil {
			return err
		}

		c, err := client.Dial(context.Background(), clientConfig(&cfg.Client))
		if err != nil {
			return err
		}
		defer c.Close()

		req := client.SendRequest{
			Virtual:      args[1],
			LocalPath:    args[0],
			TransferID:   transferFlags.transferID,
			RecordFormat: byte(transferFlags.recordFormat),
			RecordLength: transferFlags.recordLength,
		}
		if err := c.Send(context.Background(), req); err != nil {
			return err
		}
		fmt.Printf("sent %s as %s\n", args[0], args[1])
		return nil
	},
}

var receiveCmd = &cobra.Command{
	Use:   "receive <remote-virtual-name> <local-path>",
	Short: "Receive a file from a remote PeSIT server",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(GetConfigFile())
		if err != nil {
			return err
		}
		if err := InitLogger(cfg); err != nil {
			return err
		}

		req := client.ReceiveRequest{
			Virtual:      args[0],
			LocalPath:    args[1],
			RecordLength: transferFlags.recordLength,
		}
		if err := client.Receive(context.Background(), clientConfig(&cfg.Client), req); err != nil {
			return err
		}
		fmt.Printf("received %s as %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	bindTransferFlags(sendCmd)
	bindTransferFlags(receiveCmd)
	sendCmd.Flags().StringVar(&transferFlags.transferID, "transfer-id", "", "PI_13 transfer identifier")
	sendCmd.Flags().IntVar(&transferFlags.recordFormat, "record-format", 1, "PI_31 record format")
}
