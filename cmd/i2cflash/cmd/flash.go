package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/k0kubun/go-ansi"
	"github.com/manifoldco/promptui"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/synthread/go-i2cflash/flash"
	"github.com/synthread/go-i2cflash/image"
)

var (
	green = color.New(color.FgGreen).SprintfFunc()
	red   = color.New(color.FgRed).SprintfFunc()
)

var flashCmd = &cobra.Command{
	Use:   "flash <filename>",
	Short: "erase the device and write a firmware image",
	Long:  `Flash a .bin, .hex or .elf image. Raw binaries are written at the flash base address`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		base, _ := cmd.Flags().GetUint32(flagBase)
		img, err := image.Load(args[0], base)
		if err != nil {
			return err
		}
		logrus.Infof("loaded %d bytes from %s", len(img.Data), filepath.Base(args[0]))

		if yes, _ := cmd.Flags().GetBool(flagYes); !yes && !confirm(fmt.Sprintf("Erase the device and write %d bytes at 0x%08x", len(img.Data), img.Addr)) {
			return nil
		}

		tg, err := openTarget(cmd)
		if err != nil {
			return err
		}
		defer tg.Close()
		tg.base = img.Addr

		bar := progressbar.NewOptions(len(img.Data),
			progressbar.OptionSetWriter(ansi.NewAnsiStdout()),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(20),
			progressbar.OptionSetDescription("[cyan]flashing[reset]"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}))

		start := time.Now()
		err = tg.session(flash.WithProgress(func(done, total int) {
			bar.Set(done)
		})).Flash(ctx, img.Data)
		bar.Finish()
		fmt.Println()

		if err != nil {
			fmt.Println(red("FAIL"), err)
			return err
		}
		fmt.Println(green("PASS"), "flashed in", time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(flashCmd)
}

func confirm(label string) bool {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	if _, err := prompt.Run(); err != nil {
		return false
	}
	return true
}
