// +build !windows

package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
)

func interrupt(cancel <-chan struct{}, e *engine) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	for {
		select {
		case sig := <-c:
			switch sig {
			case syscall.SIGUSR1:
				if _, err := e.ingestor.PollActive(context.Background()); err != nil {
					e.logger.Error("Poll pass failed: ", err)
				}
				continue
			case syscall.SIGUSR2:
				if _, err := e.sweeper.SweepExpired(context.Background()); err != nil {
					e.logger.Error("Sweep pass failed: ", err)
				}
				continue
			default:
				return fmt.Errorf("received signal %s", sig)
			}
		case <-cancel:
			return errors.New("canceled")
		}
	}
}
