package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "i2cflash",
	Short:        "Flash firmware through an STM32 ROM bootloader",
	Long:         `Resets a device into its ROM bootloader over I2C (or UART), erases it and writes a new image`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		if debug, _ := cmd.Flags().GetBool(flagDebug); debug {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
}

// Execute adds all child commands to the root command and runs it
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

const (
	flagBus      = "bus"
	flagAddr     = "addr"
	flagBase     = "base"
	flagEntry    = "entry"
	flagDialect  = "dialect"
	flagPort     = "port"
	flagBaudrate = "baudrate"
	flagBoot0    = "boot0"
	flagBoot1    = "boot1"
	flagPower    = "power"
	flagSimulate = "simulate"
	flagYes      = "yes"
	flagDebug    = "debug"
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP(flagBus, "i", "", "i2c bus name, empty = first bus found")
	pf.Uint8P(flagAddr, "a", 0, "application i2c address of the device")
	pf.Uint32P(flagBase, "B", 0x08000000, "flash base address")
	pf.Uint32P(flagEntry, "e", 0, "application entry address for GO, 0 = flash base")
	pf.StringP(flagDialect, "D", "i2c", "bootloader dialect: i2c, i2c-stretch or uart")
	pf.StringP(flagPort, "p", "/dev/ttyS1", "serial port for the uart dialect")
	pf.IntP(flagBaudrate, "b", 115200, "baudrate for the uart dialect")
	pf.Int(flagBoot0, 39, "BOOT0 gpio for the uart dialect")
	pf.Int(flagBoot1, 41, "BOOT1 gpio for the uart dialect")
	pf.Int(flagPower, 19, "power gpio for the uart dialect")
	pf.Bool(flagSimulate, false, "talk to a simulated device instead of hardware")
	pf.BoolP(flagYes, "y", false, "do not ask before erasing")
	pf.BoolP(flagDebug, "d", false, "debug mode")
}
