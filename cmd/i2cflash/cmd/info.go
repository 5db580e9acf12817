package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "print bootloader and chip info",
	Long:  `Reset into the bootloader, identify the chip and start the application again`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tg, err := openTarget(cmd)
		if err != nil {
			return err
		}
		defer tg.Close()

		s := tg.session()
		if err := s.EnterBootloader(ctx); err != nil {
			return err
		}
		if err := s.Identify(ctx); err != nil {
			return err
		}

		id := s.Identity()
		fmt.Printf("chip id:          0x%04x\n", id.ChipID)
		fmt.Printf("protocol version: %s\n", id.Version)
		fmt.Printf("bootloader:       %s\n", id.Bootloader.Version)
		fmt.Printf("commands:         % x\n", id.Bootloader.Commands)

		return s.JumpToApplication(ctx)
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
