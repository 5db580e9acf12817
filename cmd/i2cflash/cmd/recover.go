package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/synthread/go-i2cflash/transport"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "clock a stuck i2c bus free",
	Long:  `Toggle SCL with SDA held high through gpio. The i2c controller must not own the pins while this runs`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sda, _ := cmd.Flags().GetInt("sda")
		scl, _ := cmd.Flags().GetInt("scl")
		if sda <= 0 || scl <= 0 {
			return errors.New("both --sda and --scl gpio numbers are required")
		}
		if err := transport.RecoverBus(transport.RecoveryPins{SDA: sda, SCL: scl}); err != nil {
			return err
		}
		fmt.Println(green("PASS"), "bus released")
		return nil
	},
}

func init() {
	recoverCmd.Flags().Int("sda", 0, "SDA gpio number")
	recoverCmd.Flags().Int("scl", 0, "SCL gpio number")
	rootCmd.AddCommand(recoverCmd)
}
