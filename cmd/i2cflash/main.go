package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/synthread/go-i2cflash/cmd/i2cflash/cmd"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quitChan := make(chan os.Signal, 1)
	signal.Notify(quitChan, os.Interrupt)
	go func() {
		s := <-quitChan
		logrus.Warnf("got %v, stopping after the current page", s)
		cancel()
		// a wedged bus transaction would otherwise hang forever
		<-time.After(30 * time.Second)
		logrus.Fatal("took too long to shut down, forcefully exiting")
	}()

	if err := cmd.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
